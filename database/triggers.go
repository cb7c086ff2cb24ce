package database

import (
	"fmt"

	"github.com/dataponto/dataponto-backend/utils"
	"gorm.io/gorm"
)

// triggerStatements records every INSERT on messages into db_changes so the
// change monitor sees rows written by any client, not only by this service.
var triggerStatements = map[string][]string{
	"sqlite": {
		`CREATE TRIGGER IF NOT EXISTS messages_after_insert
		AFTER INSERT ON messages
		BEGIN
			INSERT INTO db_changes (table_name, record_id, action_type, changed_at, processed)
			VALUES ('messages', NEW.id, 'INSERT', CURRENT_TIMESTAMP, 0);
		END`,
	},
	"postgres": {
		`CREATE OR REPLACE FUNCTION record_message_insert() RETURNS trigger AS $$
		BEGIN
			INSERT INTO db_changes (table_name, record_id, action_type, changed_at, processed)
			VALUES ('messages', NEW.id::text, 'INSERT', now(), false);
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql`,
		`DROP TRIGGER IF EXISTS messages_after_insert ON messages`,
		`CREATE TRIGGER messages_after_insert
		AFTER INSERT ON messages
		FOR EACH ROW EXECUTE FUNCTION record_message_insert()`,
	},
	"mysql": {
		`DROP TRIGGER IF EXISTS messages_after_insert`,
		`CREATE TRIGGER messages_after_insert
		AFTER INSERT ON messages
		FOR EACH ROW
		INSERT INTO db_changes (table_name, record_id, action_type, changed_at, processed)
		VALUES ('messages', NEW.id, 'INSERT', NOW(), 0)`,
	},
}

// ExecuteTriggers installs the change-log triggers for the connected dialect.
func ExecuteTriggers(db *gorm.DB) error {
	dialect := db.Dialector.Name()
	statements, ok := triggerStatements[dialect]
	if !ok {
		return fmt.Errorf("no change-log triggers for dialect %q", dialect)
	}

	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("execute trigger statement: %w", err)
		}
	}

	utils.Info(nil).Printf("Change-log triggers installed (%s)", dialect)
	return nil
}
