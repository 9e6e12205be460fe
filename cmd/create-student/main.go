package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/quizport/quizport-backend/internal/config"
	"github.com/quizport/quizport-backend/internal/database"
	"github.com/quizport/quizport-backend/internal/logger"
	"github.com/quizport/quizport-backend/internal/model"
	"github.com/quizport/quizport-backend/internal/repository"
	"github.com/quizport/quizport-backend/internal/service"
	"golang.org/x/term"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Initialize Service ────────────────────────────────────────────
	studentRepo := repository.NewStudentRepository(pool)
	studentService := service.NewStudentService(studentRepo)

	// ─── CLI Input ─────────────────────────────────────────────────────
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("=== Create New Student Account ===")

	// Username
	fmt.Print("Enter Username: ")
	username, _ := reader.ReadString('\n')
	username = strings.TrimSpace(username)
	if len(username) < 3 {
		fmt.Println("Error: Username must be at least 3 characters")
		return
	}

	// Name
	fmt.Print("Enter Full Name: ")
	name, _ := reader.ReadString('\n')
	name = strings.TrimSpace(name)
	if name == "" {
		fmt.Println("Error: Name is required")
		return
	}

	// Password
	fmt.Print("Enter Password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		fmt.Println("\nError reading password")
		return
	}
	password := string(bytePassword)
	fmt.Println() // Newline after password input
	if len(password) < 6 {
		fmt.Println("Error: Password must be at least 6 characters")
		return
	}

	// ─── Logic ─────────────────────────────────────────────────────────

	// The service hashes the password before insert.
	newStudent := &model.Student{
		Username:     username,
		Name:         name,
		PasswordHash: password,
	}

	if err := studentService.Create(ctx, newStudent); err != nil {
		if err == repository.ErrDuplicateUsername {
			fmt.Printf("Error: Username '%s' is already taken\n", username)
			return
		}
		log.Fatal().Err(err).Msg("Failed to create student")
	}

	fmt.Printf("\nSuccess! Student '%s' (%s) created with ID: %d\n", newStudent.Name, newStudent.Username, newStudent.ID)
}
