//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	domain "github.com/hanko-field/quotations/internal/domain"
	pconfig "github.com/hanko-field/quotations/internal/platform/config"
	pfirestore "github.com/hanko-field/quotations/internal/platform/firestore"
	"github.com/hanko-field/quotations/internal/repositories"
)

func TestQuotationRepositoryIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}

	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })

	waitForEndpoint(t, endpoint, 30*time.Second)

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{
		ProjectID:    "quotations-test",
		EmulatorHost: endpoint,
	})
	t.Cleanup(func() { _ = provider.Close(context.Background()) })

	repo, err := NewQuotationRepository(provider)
	if err != nil {
		t.Fatalf("new quotation repository: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 3 {
		quotation := domain.Quotation{
			ID:           fmt.Sprintf("quo_%d", i+1),
			ReferenceID:  fmt.Sprintf("R-%d", i+1),
			ShopID:       "shop-1",
			CurrencyCode: "JPY",
			Email:        fmt.Sprintf("buyer%d@example.com", i+1),
			Shipping: []domain.QuotationFulfillmentGroup{{
				ID:       "g1",
				ShopID:   "shop-1",
				Type:     "shipping",
				Workflow: domain.Workflow{Status: "new", History: []string{"new"}},
			}},
			Workflow:  domain.Workflow{Status: "new", History: []string{"new"}},
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
			UpdatedAt: base,
		}
		if err := repo.Insert(ctx, quotation); err != nil {
			t.Fatalf("insert %s: %v", quotation.ID, err)
		}
	}

	if err := repo.Insert(ctx, domain.Quotation{ID: "quo_1", ShopID: "shop-1"}); err == nil {
		t.Fatalf("expected conflict on duplicate insert")
	} else {
		var repoErr repositories.RepositoryError
		if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
			t.Fatalf("expected conflict error, got %v", err)
		}
	}

	found, err := repo.FindByReferenceID(ctx, "shop-1", "R-2")
	if err != nil || found.ID != "quo_2" {
		t.Fatalf("find by reference = %+v, %v", found, err)
	}

	tracking := "TRK-1"
	updated, err := repo.UpdateFulfillmentGroup(ctx, "quo_1", "g1", repositories.FulfillmentGroupPatch{
		Tracking:  &tracking,
		Workflow:  &domain.Workflow{Status: "coreQuotationWorkflow/shipped", History: []string{"new", "coreQuotationWorkflow/shipped"}},
		UpdatedAt: base.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("update group: %v", err)
	}
	if updated.Shipping[0].Tracking != tracking || updated.Shipping[0].Workflow.Status != "coreQuotationWorkflow/shipped" {
		t.Fatalf("unexpected group after update %+v", updated.Shipping[0])
	}
	if _, err := repo.UpdateFulfillmentGroup(ctx, "quo_1", "missing", repositories.FulfillmentGroupPatch{UpdatedAt: base}); err == nil {
		t.Fatalf("expected not found for missing group")
	}

	page, err := repo.List(ctx, repositories.QuotationListFilter{
		ShopIDs:    []string{"shop-1"},
		Pagination: domain.Pagination{PageSize: 2},
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 2 || page.Items[0].ID != "quo_3" || page.NextPageToken == "" {
		t.Fatalf("unexpected first page %+v", page)
	}
	next, err := repo.List(ctx, repositories.QuotationListFilter{
		ShopIDs:    []string{"shop-1"},
		Pagination: domain.Pagination{PageSize: 2, PageToken: page.NextPageToken},
	})
	if err != nil {
		t.Fatalf("list next: %v", err)
	}
	if len(next.Items) != 1 || next.Items[0].ID != "quo_1" || next.NextPageToken != "" {
		t.Fatalf("unexpected second page %+v", next)
	}

	shipped, err := repo.List(ctx, repositories.QuotationListFilter{
		ShopIDs:           []string{"shop-1"},
		FulfillmentStatus: []string{"coreQuotationWorkflow/shipped"},
	})
	if err != nil || len(shipped.Items) != 1 || shipped.Items[0].ID != "quo_1" {
		t.Fatalf("fulfillment status filter = %+v, %v", shipped, err)
	}

	searched, err := repo.List(ctx, repositories.QuotationListFilter{SearchField: "buyer2@example.com"})
	if err != nil || len(searched.Items) != 1 || searched.Items[0].ID != "quo_2" {
		t.Fatalf("search = %+v, %v", searched, err)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	args := []string{
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	}
	out, err := exec.Command("docker", args...).CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, "docker", "info").Run(); err != nil {
		t.Fatalf("docker daemon not available: %v", err)
	}
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = exec.CommandContext(ctx, "docker", "stop", id).Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("firestore emulator at %s did not become ready within %s", endpoint, timeout)
}

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"
