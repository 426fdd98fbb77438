package api

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	apperr "github.com/mvdwal/meditrack/internal/errors"
)

// ==================== Requests ====================

type registerRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

type passwordResetConfirm struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type profileRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

type medicineRequest struct {
	Name        string  `json:"name"`
	Dose        float64 `json:"dose"`
	Unit        string  `json:"unit"`
	Stock       float64 `json:"stock"`
	Description string  `json:"description"`
}

type stockRequest struct {
	Amount float64 `json:"amount"`
}

type scheduleRequest struct {
	MedicineID string  `json:"medicine_id"`
	TimeOfDay  string  `json:"time_of_day"`
	Amount     float64 `json:"amount"`
	DaysOfWeek []int   `json:"days_of_week"`
}

type doseRequest struct {
	MedicineID    string  `json:"medicine_id"`
	Amount        float64 `json:"amount"`
	ScheduledTime string  `json:"scheduled_time"`
	TakenAt       string  `json:"taken_at"` // RFC 3339; empty means now
}

// ==================== Error mapping ====================

// fail translates a storage error into the HTTP response. Auth codes
// map to their specific statuses; everything else maps by kind.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := 500
	switch apperr.GetCode(err) {
	case "AUTH_001":
		status = 401
	case "AUTH_002":
		status = 409
	case "AUTH_003", "AUTH_004":
		status = 404
	default:
		switch apperr.KindOf(err) {
		case apperr.KindNotFound:
			status = 404
		case apperr.KindOperation:
			status = 400
		case apperr.KindConnection:
			status = 503
		}
	}

	if status >= 500 {
		s.logger.Error("request failed",
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return c.Status(status).JSON(fiber.Map{"error": "internal error"})
	}

	var msg string
	if ae, ok := err.(*apperr.AppError); ok {
		msg = ae.Message
	} else {
		msg = err.Error()
	}
	return c.Status(status).JSON(fiber.Map{"error": msg, "code": apperr.GetCode(err)})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(400).JSON(fiber.Map{"error": msg})
}
