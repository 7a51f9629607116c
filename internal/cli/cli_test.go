package cli

import "testing"

func TestValidStepName(t *testing.T) {
	for _, name := range []string{"verify-config", "migrate-shared", "health"} {
		if !validStepName(name) {
			t.Errorf("%q should be a valid step name", name)
		}
	}
	if validStepName("restart-app") {
		t.Error("unknown step names must be rejected")
	}
}

func TestTriggeredBy_FlagWins(t *testing.T) {
	deployTriggeredBy = "ci-pipeline"
	defer func() { deployTriggeredBy = "" }()
	if got := triggeredBy(); got != "ci-pipeline" {
		t.Errorf("triggeredBy() = %q", got)
	}
}

func TestTriggeredBy_EnvFallback(t *testing.T) {
	deployTriggeredBy = ""
	t.Setenv("CI_ACTOR", "release-bot")
	if got := triggeredBy(); got != "release-bot" {
		t.Errorf("triggeredBy() = %q", got)
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{
		"deploy", "migrate", "diagnose", "collect-static",
		"verify", "healthcheck", "seed-admin", "tenant", "history",
	}
	have := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		have[c.Name()] = true
	}
	for _, name := range want {
		if !have[name] {
			t.Errorf("command %q is not registered", name)
		}
	}
}

func TestNewLogger(t *testing.T) {
	for _, verbose := range []bool{false, true} {
		log, err := newLogger(verbose)
		if err != nil {
			t.Fatalf("newLogger(%v): %v", verbose, err)
		}
		_ = log.Sync()
	}
}
