// Package edl is the host-facing orchestrator for Emergency Download
// flashing sessions: it drives the Qualcomm Sahara/Firehose dialogue or
// the MediaTek BROM/DA dialogue over a Transport, resolves partition
// selectors against the discovered GPT, and sequences jobs against a
// single device one at a time (spec §4.7).
package edl

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/edlkit/edl/internal/auth"
	"github.com/edlkit/edl/internal/brom"
	"github.com/edlkit/edl/internal/config"
	"github.com/edlkit/edl/internal/firehose"
	"github.com/edlkit/edl/internal/gpt"
	"github.com/edlkit/edl/internal/keystore"
	"github.com/edlkit/edl/internal/logging"
	"github.com/edlkit/edl/internal/sahara"
	"github.com/edlkit/edl/internal/transport"
	"github.com/edlkit/edl/internal/wire"
)

// ChipFamily selects which boot-ROM dialogue a session speaks. The wire
// formats for the two families share nothing below Transport, so the
// caller states which one it expects to find on the other end of the
// port rather than the session auto-detecting it (neither family's
// handshake is safe to probe blind: a Sahara device ignores BROM's
// wake bytes, but a BROM device will NAK unrecognized traffic back into
// a state the host cannot always recover from).
type ChipFamily int

const (
	FamilyQualcomm ChipFamily = iota
	FamilyMediaTek
)

func (f ChipFamily) String() string {
	if f == FamilyMediaTek {
		return "mediatek"
	}
	return "qualcomm"
}

// Mode mirrors the data model's ChipIdentity.mode enum (spec §3).
type Mode int

const (
	ModeSahara Mode = iota
	ModeFirehose
	ModeBrom
	ModePreloader
	ModeDa
)

func (m Mode) String() string {
	switch m {
	case ModeFirehose:
		return "firehose"
	case ModeBrom:
		return "brom"
	case ModePreloader:
		return "preloader"
	case ModeDa:
		return "da"
	default:
		return "sahara"
	}
}

// ChipIdentity is read once during handshake and immutable after
// capture (spec §3).
type ChipIdentity struct {
	MsmID      uint32
	OemID      uint16
	ModelID    uint16
	HwID       [8]byte
	PkHash     [32]byte
	Serial     [4]byte
	SblVersion uint32
	Mode       Mode

	// MediaTek-only fields, populated when Family == FamilyMediaTek.
	HwCode   uint16
	ChipName string
	DaSync   brom.DaSyncKind
}

// StorageKind and StorageProfile are the Firehose driver's types,
// aliased here so the orchestrator's public surface and the protocol
// layer agree on one definition rather than two copies drifting apart.
type StorageKind = firehose.StorageKind
type StorageProfile = firehose.StorageProfile

const (
	StorageUFS  = firehose.StorageUFS
	StorageEMMC = firehose.StorageEMMC
	StorageNAND = firehose.StorageNAND
)

// PartitionEntry is gpt's decoded entry type, aliased at the top level
// per spec §3's data model.
type PartitionEntry = gpt.Partition

// SessionOptions configures OpenSession (spec §3 expansion).
type SessionOptions struct {
	Family ChipFamily

	PortName     string
	Baud         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BufferSize   int

	// ProtectSensitive defaults to true (spec §3); nil leaves the
	// default in effect, a pointer lets a caller explicitly opt out
	// without Go's bool zero-value silently disabling protection.
	ProtectSensitive *bool
	DenyList         []string

	Logger   *logging.Logger
	KeyStore keystore.KeyStore
}

// Session is the single-device-serialized orchestrator (spec §5: the
// core is single-device-serialized; multiple sessions on distinct ports
// are independent).
type Session struct {
	mu sync.Mutex

	t        transport.Transport
	log      *logging.Logger
	denyList []string
	family   ChipFamily
	metrics  *Metrics

	sh  *sahara.Session
	fh  *firehose.Session
	brm *brom.Session
	da  *brom.DaFile

	identity   ChipIdentity
	mtkInfo    wire.BromHwInfo
	identified bool

	storage    StorageProfile
	configured bool

	partitions []PartitionEntry
	slot       gpt.SlotState

	cancel context.CancelFunc

	jobMu sync.Mutex
	busy  bool
}

// OpenSession opens the transport named by opts and constructs a
// Session ready for Identify. The chosen boot-ROM driver (Sahara or
// BROM) is not engaged until Identify is called.
func OpenSession(ctx context.Context, opts SessionOptions) (*Session, error) {
	if opts.PortName == "" {
		return nil, newError("open_session", "transport", KindBadMagic, fmt.Errorf("port name required"))
	}

	log := opts.Logger
	if log == nil {
		log = logging.NewLogger(logging.DefaultConfig())
	}

	baud := opts.Baud
	if baud == 0 {
		if opts.Family == FamilyMediaTek {
			baud = transport.DefaultBaudMtkHandshake
		} else {
			baud = transport.DefaultBaudQualcomm
		}
	}
	bufSize := opts.BufferSize
	if bufSize == 0 {
		bufSize = transport.DefaultBufferSize
	}

	t, err := transport.Open(transport.Options{
		PortName:     opts.PortName,
		Baud:         baud,
		ReadBufSize:  bufSize,
		WriteBufSize: bufSize,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	})
	if err != nil {
		return nil, newError("open_session", "transport", KindDeviceDisappeared, err)
	}

	protect := true
	if opts.ProtectSensitive != nil {
		protect = *opts.ProtectSensitive
	}

	denyList := opts.DenyList
	if protect && denyList == nil {
		if cfg, cfgErr := config.Load(); cfgErr == nil {
			denyList = cfg.DenyList()
		} else {
			denyList = config.DefaultDenyList
		}
	}
	if !protect {
		denyList = nil
	}

	return &Session{
		t:        t,
		log:      log,
		denyList: denyList,
		family:   opts.Family,
		metrics:  NewMetrics(),
	}, nil
}

// newSessionForTransport builds a Session over an already-open
// transport, used by tests that drive a MockTransport directly.
func newSessionForTransport(t transport.Transport, family ChipFamily, log *logging.Logger, denyList []string) *Session {
	return &Session{t: t, log: log, family: family, denyList: denyList, metrics: NewMetrics()}
}

// Identify runs the boot-ROM handshake for the configured family and
// returns the captured ChipIdentity (spec §3/§4.3/§4.5). For Qualcomm it
// records only Mode: the Sahara command-mode identity query is not run,
// here or in UploadLoader, so MsmID, OemID, ModelID, HwID, PkHash,
// Serial and SblVersion stay zero. MediaTek's HwCode and ChipName
// populate immediately since BROM's hw-info query needs no loader in
// flight.
func (s *Session) Identify(ctx context.Context) (ChipIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.family {
	case FamilyMediaTek:
		return s.identifyMediaTek(ctx)
	default:
		return s.identifyQualcomm(ctx)
	}
}

func (s *Session) identifyQualcomm(ctx context.Context) (ChipIdentity, error) {
	s.identity = ChipIdentity{Mode: ModeSahara}
	s.identified = true
	return s.identity, nil
}

func (s *Session) identifyMediaTek(ctx context.Context) (ChipIdentity, error) {
	s.brm = brom.NewSession(s.t, s.log, nil)
	if err := s.brm.Handshake(ctx); err != nil {
		return ChipIdentity{}, newError("identify", "brom", KindIoTimeout, err)
	}
	info, err := s.brm.QueryHwInfo(ctx)
	if err != nil {
		return ChipIdentity{}, newError("identify", "brom", KindBadMagic, err)
	}

	s.identity = ChipIdentity{
		Mode:     ModeBrom,
		HwCode:   info.HwCode,
		ChipName: info.ChipName,
	}
	s.mtkInfo = info
	s.identified = true
	s.log.Infof("identify: mediatek chip=%s hw_code=0x%04x", info.ChipName, info.HwCode)
	return s.identity, nil
}

// UploadLoader sends the loader image to the device: Sahara image
// transfer for Qualcomm, or BROM DA parse+upload for MediaTek. On
// success the session transitions to Firehose/Da Ready (spec §4.7 state
// machine).
func (s *Session) UploadLoader(ctx context.Context, image []byte, authStrategy auth.Strategy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.identified {
		return newError("upload_loader", "session", KindBadMagic, fmt.Errorf("identify must run first"))
	}

	switch s.family {
	case FamilyMediaTek:
		return s.uploadLoaderMediaTek(ctx, image, authStrategy)
	default:
		return s.uploadLoaderQualcomm(ctx, image, authStrategy)
	}
}

func (s *Session) uploadLoaderQualcomm(ctx context.Context, image []byte, authStrategy auth.Strategy) error {
	s.sh = sahara.NewSession(s.t, s.log, authStrategy)
	if err := s.sh.Upload(ctx, image); err != nil {
		return newError("upload_loader", "sahara", KindNak, err)
	}
	s.fh = firehose.NewSession(s.t, s.log)
	s.identity.Mode = ModeFirehose
	return nil
}

func (s *Session) uploadLoaderMediaTek(ctx context.Context, image []byte, authStrategy auth.Strategy) error {
	file, err := brom.ParseDaFile(image)
	if err != nil {
		return newError("upload_loader", "brom", KindBadMagic, err)
	}
	s.da = file
	s.brm.SetAuthStrategy(authStrategy)

	sync, err := s.brm.UploadDA(ctx, file, s.mtkInfo)
	if err != nil {
		switch err.(type) {
		case *brom.ErrChecksumMismatch:
			return newError("upload_loader", "brom", KindChecksumMismatch, err)
		default:
			return newError("upload_loader", "brom", KindNak, err)
		}
	}
	s.identity.DaSync = sync
	s.identity.Mode = ModeDa
	return nil
}

// Configure negotiates storage type and chunk size over Firehose. Only
// meaningful for Qualcomm sessions that have completed UploadLoader; the
// MediaTek DA command protocol is outside this spec's wire-format
// coverage (spec §6 names Sahara/Firehose/BROM/DA formats explicitly and
// stops at "DA Ready" for MediaTek).
func (s *Session) Configure(ctx context.Context, kind StorageKind) (StorageProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fh == nil {
		return StorageProfile{}, newError("configure", "session", KindBadMagic, fmt.Errorf("firehose session not ready"))
	}

	sectorSize := uint32(4096)
	if kind == StorageEMMC {
		sectorSize = 512
	}

	profile, err := s.fh.Configure(ctx, kind, sectorSize)
	if err != nil {
		var nak *firehose.ErrNak
		if errors.As(err, &nak) {
			return StorageProfile{}, withLog(newError("configure", "firehose", KindNak, err), nak.Logs)
		}
		return StorageProfile{}, newError("configure", "firehose", KindIoTimeout, err)
	}
	if profile.NumPhysicalPartitions == 0 {
		profile.NumPhysicalPartitions = defaultLUNCount(kind)
	}
	s.storage = profile
	s.configured = true
	return profile, nil
}

// defaultLUNCount gives the typical physical-partition count for a
// storage kind absent a GetStorageInfo query (spec §3: "1 for eMMC,
// typically 6 for UFS").
func defaultLUNCount(kind StorageKind) uint8 {
	if kind == StorageUFS {
		return 6
	}
	return 1
}

// ReadPartitions reads and parses the GPT of every LUN named by the
// storage profile, deriving the active A/B slot from boot_a/boot_b
// attribute bits (spec §4.4/§4.7).
func (s *Session) ReadPartitions(ctx context.Context) ([]PartitionEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fh == nil || !s.configured {
		return nil, newError("read_partitions", "session", KindBadMagic, fmt.Errorf("configure must run first"))
	}

	numLUNs := int(s.storage.NumPhysicalPartitions)
	if numLUNs == 0 {
		numLUNs = 1
	}

	tables, skipped := s.fh.ReadAllGPT(ctx, numLUNs)
	for lun, err := range skipped {
		s.log.Warnf("read_partitions: lun %d skipped: %v", lun, err)
	}

	var entries []PartitionEntry
	var slot gpt.SlotState
	for _, table := range tables {
		entries = append(entries, table.Entries...)
		if ts := gpt.DetectSlot(table.Entries); ts != gpt.SlotNonExistent {
			slot = ts
		}
	}
	s.partitions = entries
	s.slot = slot
	return entries, nil
}

// Close cancels any job in flight and releases the transport. The
// cancel is issued before the session lock is reacquired so a job
// holding it during its Transport call (runJob holds s.mu for the
// whole job, per spec §5's single-device-serialized model) can observe
// cancellation and unwind instead of deadlocking against Close.
func (s *Session) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.Stop()
	return s.t.Close()
}

// Metrics returns the session's job-metrics accumulator.
func (s *Session) Metrics() *Metrics { return s.metrics }

// IsSensitive reports whether name matches the session's deny-list, so a
// caller (the CLI's confirmation prompt) can ask before submitting a job
// rather than discovering KindPartitionProtected only after Await.
func (s *Session) IsSensitive(name string) bool {
	return s.isSensitive(name)
}

// isSensitive reports whether name matches the deny-list glob patterns
// (spec §4.7: default gpt*/modem*/sbl*/xbl*/aboot*/devcfg*/qcn/fsc/fsg/
// modemst1/modemst2/persist).
func (s *Session) isSensitive(name string) bool {
	lname := strings.ToLower(name)
	for _, pattern := range s.denyList {
		if ok, _ := path.Match(strings.ToLower(pattern), lname); ok {
			return true
		}
	}
	return false
}
