package handlers

import (
	"github.com/cieplik206/dokumenty/internal/service/intake"
	"github.com/cieplik206/dokumenty/internal/utils/validator"
	"github.com/cieplik206/dokumenty/pkg/converters"
	"github.com/cieplik206/dokumenty/pkg/logger"
)

type Handlers struct {
	Intake *IntakeHandler
	Media  *MediaHandler
	Health *HealthHandler
}

func NewHandlers(
	service *intake.Service,
	uploads *validator.UploadValidator,
	checks map[string]Check,
	logger logger.Logger,
) *Handlers {
	return &Handlers{
		Intake: NewIntakeHandler(service, converters.NewIntakeConverter(service.Media(), logger), uploads, logger),
		Media:  NewMediaHandler(service.Media(), logger),
		Health: NewHealthHandler(checks),
	}
}
