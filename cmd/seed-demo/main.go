package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quizport/quizport-backend/internal/config"
	"github.com/quizport/quizport-backend/internal/database"
	"github.com/quizport/quizport-backend/internal/logger"
	"github.com/quizport/quizport-backend/internal/model"
	"github.com/quizport/quizport-backend/internal/repository"
	"github.com/quizport/quizport-backend/internal/service"
)

// Seeds a published demo test with questions plus a batch of student
// accounts, so a fresh database can serve a full taking session.
func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	studentRepo := repository.NewStudentRepository(pool)
	studentService := service.NewStudentService(studentRepo)

	fmt.Println("=== Seeding Demo Test ===")

	testID := uuid.New()
	_, err = pool.Exec(ctx,
		`INSERT INTO tests (id, title, author_id, duration_minutes, entry_token, question_count, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		testID, "General Knowledge Demo", 1, 30, "DEMO2026", 5, model.TestStatusPublished)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create demo test")
	}
	fmt.Printf("Created test %s (entry token: DEMO2026)\n", testID)

	prompts := []string{
		"Which planet is closest to the sun?",
		"What is the chemical symbol for water?",
		"How many continents are there?",
		"Which gas do plants absorb from the atmosphere?",
		"What is the largest ocean on Earth?",
	}
	optionSets := [][]string{
		{"Mercury", "Venus", "Earth", "Mars"},
		{"H2O", "CO2", "NaCl", "O2"},
		{"Five", "Six", "Seven", "Eight"},
		{"Carbon dioxide", "Oxygen", "Nitrogen", "Helium"},
		{"Atlantic", "Indian", "Arctic", "Pacific"},
	}
	correctIdx := []int{0, 0, 2, 0, 3}

	for i, prompt := range prompts {
		options := make([]model.Option, len(optionSets[i]))
		for j, text := range optionSets[i] {
			options[j] = model.Option{ID: uuid.New(), Text: text}
		}
		optionsJSON, err := json.Marshal(options)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to marshal options")
		}

		_, err = pool.Exec(ctx,
			`INSERT INTO questions (test_id, prompt, options, correct_option_id, points, order_num)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			testID, prompt, optionsJSON, options[correctIdx[i]].ID, 20, i+1)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create question")
		}
	}
	fmt.Printf("Created %d questions\n", len(prompts))

	fmt.Println("=== Seeding 20 Students ===")

	names := []string{
		"Alex Morgan", "Jamie Chen", "Sam Okafor", "Riley Novak", "Casey Alvarez",
		"Jordan Silva", "Taylor Brooks", "Morgan Reyes", "Avery Kim", "Quinn Haddad",
		"Dakota Marsh", "Rowan Ellis", "Skyler Beck", "Emerson Vance", "Finley Ortiz",
		"Hayden Cross", "Kendall Moss", "Logan Pierce", "Micah Stone", "Sage Whitman",
	}

	successCount := 0
	for i, name := range names {
		student := &model.Student{
			Username:     fmt.Sprintf("student%02d", i+1),
			Name:         name,
			PasswordHash: "quizport123", // Hashed by the service.
		}

		if err := studentService.Create(ctx, student); err != nil {
			fmt.Printf("Error creating student %s (%s): %v\n", student.Name, student.Username, err)
		} else {
			successCount++
		}
	}

	fmt.Printf("\nSeed completed! Successfully added %d/%d students.\n", successCount, len(names))
}
