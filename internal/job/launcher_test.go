package job

import (
	"context"
	"errors"
	"testing"
)

func TestLaunchRefusesRunningInstance(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 2)
	ctx := context.Background()

	// Simulate a crashed-but-not-finalised or concurrently running execution.
	instanceID, err := h.store.FindOrCreateInstance(ctx, "price-import", CanonicalKey(launchParams))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.store.CreateExecution(ctx, instanceID, 0, 0, 0); err != nil {
		t.Fatal(err)
	}

	exec, err := h.launcher.Launch(ctx, "price-import", launchParams, scriptedFactory(goodItems(2), nil))
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("Launch = %v, want ErrAlreadyRunning", err)
	}
	if exec != nil {
		t.Fatalf("exec = %+v, want nil on refusal", exec)
	}
	if code := ExitCode(exec, err); code != 3 {
		t.Fatalf("exit code = %d, want 3", code)
	}
}

func TestLaunchRefusesCompletedInstance(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 2)
	ctx := context.Background()

	if _, err := h.launcher.Launch(ctx, "price-import", launchParams, scriptedFactory(goodItems(2), nil)); err != nil {
		t.Fatalf("first Launch: %v", err)
	}

	_, err := h.launcher.Launch(ctx, "price-import", launchParams, scriptedFactory(goodItems(2), nil))
	if !errors.Is(err, ErrAlreadyComplete) {
		t.Fatalf("second Launch = %v, want ErrAlreadyComplete", err)
	}

	// Different parameters are a different instance and launch freely.
	other := map[string]string{"input.file": "other.csv"}
	if _, err := h.launcher.Launch(ctx, "price-import", other, scriptedFactory(goodItems(2), nil)); err != nil {
		t.Fatalf("Launch with new params: %v", err)
	}
}

func TestLaunchRefusesRestartWhenDisabled(t *testing.T) {
	t.Parallel()
	h := newHarness(t, 2)
	h.driver.Restartable = false
	ctx := context.Background()

	broken := []sourceItem{{err: errors.New("stream truncated")}}
	if _, err := h.launcher.Launch(ctx, "price-import", launchParams, scriptedFactory(broken, nil)); err == nil {
		t.Fatal("first launch should fail")
	}

	_, err := h.launcher.Launch(ctx, "price-import", launchParams, scriptedFactory(goodItems(2), nil))
	if !errors.Is(err, ErrRestartNotAllowed) {
		t.Fatalf("Launch = %v, want ErrRestartNotAllowed", err)
	}
}
