package services

import (
	"testing"

	"feedbackapp/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestCreateEmailService_TestMode(t *testing.T) {
	cfg := &config.Config{IsTest: true}
	svc := CreateEmailService(cfg, testLogger())
	assert.IsType(t, &TestEmailService{}, svc)
}

func TestCreateEmailService_Production(t *testing.T) {
	cfg := &config.Config{}
	svc := CreateEmailService(cfg, testLogger())
	assert.IsType(t, &EmailService{}, svc)
}

func TestCreateEmailServiceWithDB_TestModeAllowsNilDB(t *testing.T) {
	cfg := &config.Config{IsTest: true}
	svc := CreateEmailServiceWithDB(cfg, testLogger(), nil)
	assert.IsType(t, &TestEmailService{}, svc)
}

func TestCreateEmailServiceWithDB_PanicsOnNilDB(t *testing.T) {
	cfg := &config.Config{}
	assert.Panics(t, func() {
		CreateEmailServiceWithDB(cfg, testLogger(), nil)
	})
}
