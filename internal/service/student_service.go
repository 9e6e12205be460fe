package service

import (
	"context"

	"github.com/quizport/quizport-backend/internal/model"
	"github.com/quizport/quizport-backend/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// StudentService handles student account logic.
type StudentService struct {
	studentRepo *repository.StudentRepository
}

// NewStudentService creates a new StudentService.
func NewStudentService(studentRepo *repository.StudentRepository) *StudentService {
	return &StudentService{studentRepo: studentRepo}
}

// GetByUsername retrieves a student by their username.
func (s *StudentService) GetByUsername(ctx context.Context, username string) (*model.Student, error) {
	return s.studentRepo.GetByUsername(ctx, username)
}

// GetByID retrieves a student by ID.
func (s *StudentService) GetByID(ctx context.Context, id int) (*model.Student, error) {
	return s.studentRepo.GetByID(ctx, id)
}

// Create inserts a new student with a hashed password.
func (s *StudentService) Create(ctx context.Context, student *model.Student) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(student.PasswordHash), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	student.PasswordHash = string(hashed)
	return s.studentRepo.Create(ctx, student)
}
