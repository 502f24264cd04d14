// Package testing runs the tracking store tests against a Firestore emulator.
package testing

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const emulatorHostEnv = "FIRESTORE_EMULATOR_HOST"

// Emulator is one isolated project on a Firestore emulator.
type Emulator struct {
	Client    *firestore.Client
	host      string
	projectID string
}

// StartEmulator connects to the emulator named by FIRESTORE_EMULATOR_HOST, or launches one
// with gcloud on a free port. The test is skipped when neither works. Every call gets its
// own project, so parallel packages do not see each other's records.
func StartEmulator(t *testing.T) *Emulator {
	t.Helper()

	host := os.Getenv(emulatorHostEnv)
	if host == "" {
		var err error
		if host, err = launchEmulator(t); err != nil {
			t.Skipf("Firestore emulator unavailable: %v", err)
		}
	}

	e := &Emulator{host: host, projectID: "records-" + uuid.NewString()[:8]}

	conn, err := grpc.Dial(host, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial Firestore emulator at %s: %v", host, err)
	}
	client, err := firestore.NewClient(context.Background(), e.projectID, option.WithGRPCConn(conn))
	if err != nil {
		_ = conn.Close()
		t.Fatalf("create Firestore client: %v", err)
	}
	e.Client = client
	t.Cleanup(func() { _ = client.Close() })

	return e
}

// Reset deletes every document in the emulator project.
func (e *Emulator) Reset(ctx context.Context) error {
	url := fmt.Sprintf("http://%s/emulator/v1/projects/%s/databases/(default)/documents", e.host, e.projectID)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("reset emulator project %s: %w", e.projectID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	// A project nothing has written to yet answers 404.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("reset emulator project %s: status %d", e.projectID, resp.StatusCode)
	}
	return nil
}

func launchEmulator(t *testing.T) (string, error) {
	t.Helper()

	if _, err := exec.LookPath("gcloud"); err != nil {
		return "", err
	}

	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return "", err
	}
	host := l.Addr().String()
	_ = l.Close()

	// #nosec G204 -- fixed arguments
	cmd := exec.Command("gcloud", "emulators", "firestore", "start", "--host-port", host)
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("start gcloud emulator: %w", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})

	if err := waitUntilServing(host, 10*time.Second); err != nil {
		return "", err
	}
	t.Logf("Started Firestore emulator at %s", host)
	return host, nil
}

func waitUntilServing(host string, timeout time.Duration) error {
	client := &http.Client{Timeout: time.Second}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := client.Get("http://" + host + "/")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("emulator at %s not serving after %s", host, timeout)
}
