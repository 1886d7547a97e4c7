package validate

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"nimbus/internal/automation/models"
	dErrors "nimbus/pkg/domain-errors"
)

type ValidateSuite struct {
	suite.Suite
}

func TestValidateSuite(t *testing.T) {
	suite.Run(t, new(ValidateSuite))
}

func (s *ValidateSuite) TestTriggerConfig() {
	s.Run("storage threshold in range passes", func() {
		err := TriggerConfig(models.TriggerStorageThreshold, map[string]any{"threshold": 90})
		s.NoError(err)
	})

	s.Run("storage threshold out of range rejected", func() {
		err := TriggerConfig(models.TriggerStorageThreshold, map[string]any{"threshold": 150})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown field rejected", func() {
		err := TriggerConfig(models.TriggerStorageThreshold, map[string]any{"threshold": 90, "unit": "GB"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("cpu threshold with sustain window passes", func() {
		err := TriggerConfig(models.TriggerCPUThreshold, map[string]any{"threshold": 80, "duration_minutes": 5})
		s.NoError(err)
	})

	s.Run("file upload accepts empty type list", func() {
		err := TriggerConfig(models.TriggerFileUpload, map[string]any{"file_types": []string{}})
		s.NoError(err)
	})

	s.Run("file upload rejects blank extension", func() {
		err := TriggerConfig(models.TriggerFileUpload, map[string]any{"file_types": []string{"  "}})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("valid cron passes", func() {
		err := TriggerConfig(models.TriggerScheduled, map[string]any{"cron": "0 9 * * *"})
		s.NoError(err)
	})

	s.Run("six-field cron rejected", func() {
		err := TriggerConfig(models.TriggerScheduled, map[string]any{"cron": "0 0 9 * * *"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("database query requires database id", func() {
		err := TriggerConfig(models.TriggerDatabaseQuery, map[string]any{
			"query": "SELECT * FROM stock WHERE qty < 5",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unsupported kind rejected", func() {
		err := TriggerConfig("filesystem_watch", map[string]any{})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ValidateSuite) TestReadOnlyQuery() {
	s.Run("plain select passes", func() {
		s.NoError(ReadOnlyQuery("SELECT id, qty FROM stock WHERE qty < 5"))
	})

	s.Run("trailing semicolon tolerated", func() {
		s.NoError(ReadOnlyQuery("SELECT 1;"))
	})

	s.Run("non-select rejected", func() {
		err := ReadOnlyQuery("DELETE FROM stock")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("stacked statements rejected", func() {
		err := ReadOnlyQuery("SELECT 1; DROP TABLE stock")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("select into rejected", func() {
		err := ReadOnlyQuery("SELECT * INTO backup FROM stock")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("mutating CTE rejected", func() {
		err := ReadOnlyQuery("with x as (delete from stock returning *) select * from x")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("read-only CTE passes", func() {
		s.NoError(ReadOnlyQuery("WITH low AS (SELECT id FROM stock WHERE qty < 5) SELECT * FROM low"))
	})

	s.Run("keyword glued to punctuation rejected", func() {
		err := ReadOnlyQuery("SELECT 1 FROM x WHERE f((drop))")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("empty query rejected", func() {
		err := ReadOnlyQuery("   ")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ValidateSuite) TestActionConfig() {
	s.Run("email requires a plausible recipient", func() {
		err := ActionConfig(models.ActionEmail, map[string]any{
			"to": "not-an-address", "subject": "hi", "body": "b",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("valid email passes", func() {
		err := ActionConfig(models.ActionEmail, map[string]any{
			"to": "owner@example.com", "subject": "Storage warning", "body": "{{used}}% used",
		})
		s.NoError(err)
	})

	s.Run("discord requires an http url", func() {
		err := ActionConfig(models.ActionDiscord, map[string]any{
			"webhook_url": "ftp://discord.example", "message": "m",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("webhook rejects unsupported method", func() {
		err := ActionConfig(models.ActionWebhook, map[string]any{
			"url": "https://example.com/hook", "method": "TRACE",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("dashboard alert rejects unknown severity", func() {
		err := ActionConfig(models.ActionDashboardAlert, map[string]any{
			"title": "t", "message": "m", "severity": "catastrophic",
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("dashboard alert passes with default severity", func() {
		err := ActionConfig(models.ActionDashboardAlert, map[string]any{
			"title": "Low stock", "message": "{{item}} is low",
		})
		s.NoError(err)
	})
}

func (s *ValidateSuite) TestDescriptions() {
	s.Run("trigger description is deterministic", func() {
		desc := TriggerDescription(models.TriggerStorageThreshold, map[string]any{"threshold": 90})
		s.Equal("when storage usage reaches 90%", desc)
	})

	s.Run("action description defaults method to POST", func() {
		desc := ActionDescription(models.ActionWebhook, map[string]any{"url": "https://example.com/h"})
		s.Equal("POST https://example.com/h", desc)
	})
}
