//go:build integration

package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/edlkit/edl"
)

// requireDevice skips the test unless EDLFLASH_TEST_PORT names a serial
// port with a real device sitting in EDL mode, since these tests drive
// actual hardware rather than a MockTransport.
func requireDevice(t *testing.T) string {
	t.Helper()
	port := os.Getenv("EDLFLASH_TEST_PORT")
	if port == "" {
		t.Skip("EDLFLASH_TEST_PORT not set; skipping hardware integration test")
	}
	return port
}

func testFamily() edl.ChipFamily {
	if os.Getenv("EDLFLASH_TEST_FAMILY") == "mediatek" {
		return edl.FamilyMediaTek
	}
	return edl.FamilyQualcomm
}

func TestIntegrationIdentify(t *testing.T) {
	port := requireDevice(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	session, err := edl.OpenSession(ctx, edl.SessionOptions{
		Family:   testFamily(),
		PortName: port,
	})
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	defer session.Close()

	identity, err := session.Identify(ctx)
	if err != nil {
		t.Fatalf("identify: %v", err)
	}
	t.Logf("identified: mode=%s msm_id=0x%08x chip=%s", identity.Mode, identity.MsmID, identity.ChipName)
}

func TestIntegrationReadPartitionsRoundTrip(t *testing.T) {
	port := requireDevice(t)
	if testFamily() == edl.FamilyMediaTek {
		t.Skip("partition discovery requires a Firehose loader, Qualcomm only for this smoke test")
	}

	loaderPath := os.Getenv("EDLFLASH_TEST_LOADER")
	if loaderPath == "" {
		t.Skip("EDLFLASH_TEST_LOADER not set; need a Firehose loader image to reach Configure")
	}
	image, err := os.ReadFile(loaderPath)
	if err != nil {
		t.Fatalf("reading loader image: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	session, err := edl.OpenSession(ctx, edl.SessionOptions{
		Family:   edl.FamilyQualcomm,
		PortName: port,
	})
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	defer session.Close()

	if _, err := session.Identify(ctx); err != nil {
		t.Fatalf("identify: %v", err)
	}
	if err := session.UploadLoader(ctx, image, nil); err != nil {
		t.Fatalf("upload loader: %v", err)
	}
	if _, err := session.Configure(ctx, edl.StorageUFS); err != nil {
		t.Fatalf("configure: %v", err)
	}

	entries, err := session.ReadPartitions(ctx)
	if err != nil {
		t.Fatalf("read partitions: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected at least one partition entry from a real device")
	}
	t.Logf("read %d partition entries", len(entries))

	// A read of the first entry's first sector should round-trip without
	// touching anything the deny-list would refuse.
	ticket, err := session.Submit(edl.Job{
		Kind:     edl.JobRead,
		Selector: edl.PartitionSelector{LUN: entries[0].LUN, StartSector: entries[0].StartSector, NumSectors: 1},
	})
	if err != nil {
		t.Fatalf("submit read: %v", err)
	}
	result, err := ticket.Await(ctx)
	if err != nil {
		t.Fatalf("await read: %v", err)
	}
	if len(result.Data) == 0 {
		t.Fatal("expected non-empty sector read")
	}
}
