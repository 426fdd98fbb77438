package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mvdwal/meditrack/internal/mail"
	"github.com/mvdwal/meditrack/internal/storage"
)

// userResponse is the account record without the credential hash.
type userResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Active    bool      `json:"active"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResponse(u *storage.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Active:    u.Active,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		CreatedAt: u.CreatedAt,
	}
}

// ==================== Auth ====================

func (s *Server) handleRegister(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	user, err := s.store.RegisterUser(req.Username, req.Email, req.Password, req.FirstName, req.LastName)
	if err != nil {
		return s.fail(c, err)
	}

	// Verification mail is best effort; the account exists either way
	// and the token can be re-requested.
	if user.Email != "" {
		token, err := s.store.CreateVerificationToken(user.ID, verificationTTL)
		if err == nil {
			msg, buildErr := mail.Verification(user.Email, user.Username, token, verificationTTL)
			if buildErr == nil {
				_ = s.mailer.Send(c.Context(), msg)
			}
		} else {
			s.logger.Error("failed to create verification token",
				zap.String("user_id", user.ID),
				zap.Error(err),
			)
		}
	}

	return c.Status(201).JSON(toUserResponse(user))
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	user, err := s.store.LoginUser(req.Username, req.Password)
	if err != nil {
		return s.fail(c, err)
	}

	token, err := s.issuer.Issue(user.ID, user.Username)
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"token": token,
		"user":  toUserResponse(user),
	})
}

func (s *Server) handleVerifyEmail(c *fiber.Ctx) error {
	var req tokenRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	user, err := s.store.VerifyVerificationToken(req.Token)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(toUserResponse(user))
}

func (s *Server) handlePasswordResetRequest(c *fiber.Ctx) error {
	var req passwordResetRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	// Always answer 202 so the endpoint cannot be used to probe which
	// addresses have accounts.
	user, err := s.store.GetUserByEmail(req.Email)
	if err == nil {
		token, err := s.store.CreatePasswordResetToken(user.ID, passwordResetTTL)
		if err == nil {
			msg, buildErr := mail.PasswordReset(user.Email, user.Username, token, passwordResetTTL)
			if buildErr == nil {
				_ = s.mailer.Send(c.Context(), msg)
			}
		} else {
			s.logger.Error("failed to create reset token",
				zap.String("user_id", user.ID),
				zap.Error(err),
			)
		}
	}

	return c.Status(202).JSON(fiber.Map{"status": "accepted"})
}

func (s *Server) handlePasswordResetConfirm(c *fiber.Ctx) error {
	var req passwordResetConfirm
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	if req.NewPassword == "" {
		return badRequest(c, "new_password is required")
	}

	user, err := s.store.VerifyPasswordResetToken(req.Token)
	if err != nil {
		return s.fail(c, err)
	}
	if err := s.store.UpdatePassword(user.ID, req.NewPassword); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "password updated"})
}

// ==================== Profile ====================

func (s *Server) handleGetProfile(c *fiber.Ctx) error {
	user, err := s.store.GetUserByID(userID(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(toUserResponse(user))
}

func (s *Server) handleUpdateProfile(c *fiber.Ctx) error {
	var req profileRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	user, err := s.store.UpdateProfile(userID(c), req.FirstName, req.LastName, req.Email)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(toUserResponse(user))
}

func (s *Server) handleChangePassword(c *fiber.Ctx) error {
	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	uid := userID(c)
	if err := s.store.CheckPassword(uid, req.CurrentPassword); err != nil {
		return s.fail(c, err)
	}
	if err := s.store.UpdatePassword(uid, req.NewPassword); err != nil {
		return s.fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "password updated"})
}

func (s *Server) handleDeleteAccount(c *fiber.Ctx) error {
	if err := s.store.DeleteUser(userID(c)); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(204)
}

// ==================== Medicines ====================

func (s *Server) handleListMedicines(c *fiber.Ctx) error {
	meds, err := s.store.GetAllMedicines(userID(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(meds)
}

func (s *Server) handleCreateMedicine(c *fiber.Ctx) error {
	var req medicineRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	med, err := s.store.CreateMedicine(userID(c), storage.Medicine{
		Name:        req.Name,
		Dose:        req.Dose,
		Unit:        req.Unit,
		Stock:       req.Stock,
		Description: req.Description,
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(201).JSON(med)
}

func (s *Server) handleGetMedicine(c *fiber.Ctx) error {
	med, err := s.store.GetMedicine(userID(c), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(med)
}

func (s *Server) handleUpdateMedicine(c *fiber.Ctx) error {
	var req medicineRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	med, err := s.store.UpdateMedicine(userID(c), storage.Medicine{
		ID:          c.Params("id"),
		Name:        req.Name,
		Dose:        req.Dose,
		Unit:        req.Unit,
		Stock:       req.Stock,
		Description: req.Description,
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(med)
}

func (s *Server) handleDeleteMedicine(c *fiber.Ctx) error {
	if err := s.store.DeleteMedicine(userID(c), c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(204)
}

func (s *Server) handleAddStock(c *fiber.Ctx) error {
	var req stockRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	if req.Amount <= 0 {
		return badRequest(c, "amount must be positive")
	}

	med, err := s.store.AddStock(userID(c), c.Params("id"), req.Amount)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(med)
}

// ==================== Schedules ====================

func (s *Server) handleListSchedules(c *fiber.Ctx) error {
	schedules, err := s.store.GetAllSchedules(userID(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(schedules)
}

func (s *Server) handleCreateSchedule(c *fiber.Ctx) error {
	var req scheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	sch, err := s.store.CreateSchedule(userID(c), storage.Schedule{
		MedicineID: req.MedicineID,
		TimeOfDay:  req.TimeOfDay,
		Amount:     req.Amount,
		DaysOfWeek: req.DaysOfWeek,
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(201).JSON(sch)
}

func (s *Server) handleGetSchedule(c *fiber.Ctx) error {
	sch, err := s.store.GetSchedule(userID(c), c.Params("id"))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(sch)
}

func (s *Server) handleUpdateSchedule(c *fiber.Ctx) error {
	var req scheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}

	sch, err := s.store.UpdateSchedule(userID(c), storage.Schedule{
		ID:         c.Params("id"),
		MedicineID: req.MedicineID,
		TimeOfDay:  req.TimeOfDay,
		Amount:     req.Amount,
		DaysOfWeek: req.DaysOfWeek,
	})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(sch)
}

func (s *Server) handleDeleteSchedule(c *fiber.Ctx) error {
	if err := s.store.DeleteSchedule(userID(c), c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(204)
}

// ==================== History ====================

func (s *Server) handleListHistory(c *fiber.Ctx) error {
	histories, err := s.store.GetAllDosageHistories(userID(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(histories)
}

func (s *Server) handleRecordDose(c *fiber.Ctx) error {
	var req doseRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request")
	}
	if req.Amount <= 0 {
		return badRequest(c, "amount must be positive")
	}

	var when *time.Time
	if req.TakenAt != "" {
		t, err := time.Parse(time.RFC3339, req.TakenAt)
		if err != nil {
			return badRequest(c, "taken_at must be RFC 3339")
		}
		when = &t
	}

	h, err := s.store.CreateDosageHistory(userID(c), req.MedicineID, req.Amount, req.ScheduledTime, when)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(201).JSON(h)
}

func (s *Server) handleDeleteDose(c *fiber.Ctx) error {
	if err := s.store.DeleteDosageHistory(userID(c), c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(204)
}

// ==================== Reports ====================

func (s *Server) handleDailySchedule(c *fiber.Ctx) error {
	day := time.Now()
	if d := c.Query("date"); d != "" {
		parsed, err := time.Parse("2006-01-02", d)
		if err != nil {
			return badRequest(c, "date must be YYYY-MM-DD")
		}
		day = parsed
	}

	slots, err := s.store.GetDailySchedule(userID(c), day)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(slots)
}

func (s *Server) handleWeeklyAdherence(c *fiber.Ctx) error {
	days, err := s.store.GetWeeklyAdherence(userID(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(days)
}

func (s *Server) handleMedicineExpiry(c *fiber.Ctx) error {
	out, err := s.store.GetMedicineExpiry(userID(c), time.Now())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(out)
}

// ==================== Reference data ====================

func (s *Server) handleRefDataSearch(c *fiber.Ctx) error {
	if s.catalog == nil {
		return c.Status(503).JSON(fiber.Map{"error": "reference catalog not available"})
	}

	rows, err := s.catalog.Search(c.Query("q"), c.QueryInt("limit", 25))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(rows)
}
