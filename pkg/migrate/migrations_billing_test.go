package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSubscriptionsMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_subscriptions.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no subscriptions migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS subscriptions",
		"stripe_subscription_id TEXT NOT NULL UNIQUE",
		"FOREIGN KEY (plan_id) REFERENCES subscription_plans(id) ON DELETE RESTRICT",
		"DROP TABLE IF EXISTS subscriptions",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestPlansMigrationOrdersBeforeSubscriptions(t *testing.T) {
	plans, err := filepath.Glob(filepath.Join("migrations", "*_create_subscription_plans.sql"))
	if err != nil || len(plans) == 0 {
		t.Fatalf("no plans migration file found: %v", err)
	}
	subs, err := filepath.Glob(filepath.Join("migrations", "*_create_subscriptions.sql"))
	if err != nil || len(subs) == 0 {
		t.Fatalf("no subscriptions migration file found: %v", err)
	}

	if filepath.Base(plans[0]) >= filepath.Base(subs[0]) {
		t.Fatalf("plans migration %s must run before subscriptions migration %s", plans[0], subs[0])
	}
}
