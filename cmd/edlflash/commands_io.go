package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/edlkit/edl"
	"github.com/edlkit/edl/internal/firehose"
)

// parseSelector builds a PartitionSelector from either --name or the
// (--lun, --start, --count) triple; --name wins when both are given.
func parseSelector(name string, lun int, start, count uint64) edl.PartitionSelector {
	if name != "" {
		return edl.PartitionSelector{Name: name}
	}
	return edl.PartitionSelector{LUN: lun, StartSector: start, NumSectors: count}
}

func runTicket(cmd *cobra.Command, s *edl.Session, job edl.Job, progressLabel string) (edl.JobResult, error) {
	ticket, err := s.Submit(job)
	if err != nil {
		return edl.JobResult{}, err
	}
	go func() {
		for p := range ticket.Progress() {
			if p.BytesTotal > 0 {
				fmt.Fprintf(os.Stderr, "\r%s: %d/%d bytes", progressLabel, p.BytesDone, p.BytesTotal)
			}
		}
		fmt.Fprintln(os.Stderr)
	}()
	return ticket.Await(cmd.Context())
}

func newReadCmd(flags *rootFlags) *cobra.Command {
	var name, out string
	var lun int
	var start, count uint64

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read a partition or explicit sector range to a file",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := flags.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			result, err := runTicket(cmd, s, edl.Job{
				Kind:     edl.JobRead,
				Selector: parseSelector(name, lun, start, count),
			}, "read")
			if err != nil {
				return err
			}
			if out == "-" || out == "" {
				_, err = os.Stdout.Write(result.Data)
				return err
			}
			return os.WriteFile(out, result.Data, 0o644)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "partition name")
	cmd.Flags().IntVar(&lun, "lun", 0, "LUN (when --name is not given)")
	cmd.Flags().Uint64Var(&start, "start", 0, "start sector (when --name is not given)")
	cmd.Flags().Uint64Var(&count, "count", 0, "sector count (when --name is not given)")
	cmd.Flags().StringVar(&out, "out", "-", "output file path, or - for stdout")
	return cmd
}

func newWriteCmd(flags *rootFlags) *cobra.Command {
	var name, in string
	var lun int
	var start uint64
	var fixGpt, setBootLun bool
	var yes bool

	cmd := &cobra.Command{
		Use:   "write",
		Short: "Write a file to a partition or explicit start sector",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(in)
			if err != nil {
				return fmt.Errorf("reading --in: %w", err)
			}

			s, err := flags.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			sel := parseSelector(name, lun, start, 0)
			if !yes && name != "" && s.IsSensitive(name) {
				ok, err := confirmSensitive(name)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("aborted by operator")
				}
			}

			_, err = runTicket(cmd, s, edl.Job{
				Kind:       edl.JobWrite,
				Items:      []edl.BatchItem{{Selector: sel, Data: data}},
				FixGpt:     fixGpt,
				SetBootLUN: setBootLun,
			}, "write")
			return err
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "partition name")
	cmd.Flags().IntVar(&lun, "lun", 0, "LUN (when --name is not given)")
	cmd.Flags().Uint64Var(&start, "start", 0, "start sector (when --name is not given)")
	cmd.Flags().StringVar(&in, "in", "", "input file to write (required)")
	cmd.MarkFlagRequired("in")
	cmd.Flags().BoolVar(&fixGpt, "fix-gpt", false, "re-read and recompute the GPT CRCs after writing")
	cmd.Flags().BoolVar(&setBootLun, "set-boot-lun", false, "invoke setbootablestoragedrive after writing")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the protected-partition confirmation prompt")
	return cmd
}

func newEraseCmd(flags *rootFlags) *cobra.Command {
	var name string
	var lun int
	var start, count uint64
	var yes bool

	cmd := &cobra.Command{
		Use:   "erase",
		Short: "Erase a partition or explicit sector range",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := flags.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			if !yes && name != "" && s.IsSensitive(name) {
				ok, err := confirmSensitive(name)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("aborted by operator")
				}
			}

			_, err = runTicket(cmd, s, edl.Job{
				Kind:     edl.JobErase,
				Selector: parseSelector(name, lun, start, count),
			}, "erase")
			return err
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "partition name")
	cmd.Flags().IntVar(&lun, "lun", 0, "LUN (when --name is not given)")
	cmd.Flags().Uint64Var(&start, "start", 0, "start sector (when --name is not given)")
	cmd.Flags().Uint64Var(&count, "count", 0, "sector count (when --name is not given)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the protected-partition confirmation prompt")
	return cmd
}

// batchItemFlag is one --item name=path pair from the batch command.
type batchItemFlag struct {
	name string
	path string
}

func newBatchCmd(flags *rootFlags) *cobra.Command {
	var items []string
	var fixGpt, setBootLun, yes bool

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Write several partitions in one job with aggregate progress",
		Long:  "Each --item is name=path, e.g. --item boot_a=boot.img. Items commit in the order given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseBatchItems(items)
			if err != nil {
				return err
			}

			s, err := flags.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			batchItems := make([]edl.BatchItem, len(parsed))
			for i, it := range parsed {
				if !yes && s.IsSensitive(it.name) {
					ok, err := confirmSensitive(it.name)
					if err != nil {
						return err
					}
					if !ok {
						return fmt.Errorf("aborted by operator")
					}
				}
				data, err := os.ReadFile(it.path)
				if err != nil {
					return fmt.Errorf("reading %s: %w", it.path, err)
				}
				batchItems[i] = edl.BatchItem{Selector: edl.PartitionSelector{Name: it.name}, Data: data}
			}

			result, err := runTicket(cmd, s, edl.Job{
				Kind:       edl.JobWrite,
				Items:      batchItems,
				FixGpt:     fixGpt,
				SetBootLUN: setBootLun,
			}, "batch")
			if err != nil {
				return err
			}
			fmt.Printf("wrote %d bytes across %d items\n", result.BytesTransferred, len(batchItems))
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&items, "item", nil, "name=path, repeatable")
	cmd.Flags().BoolVar(&fixGpt, "fix-gpt", true, "re-read and recompute the GPT CRCs after writing")
	cmd.Flags().BoolVar(&setBootLun, "set-boot-lun", false, "invoke setbootablestoragedrive after writing")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the protected-partition confirmation prompt")
	return cmd
}

func parseBatchItems(raw []string) ([]batchItemFlag, error) {
	out := make([]batchItemFlag, 0, len(raw))
	for _, r := range raw {
		for i := 0; i < len(r); i++ {
			if r[i] == '=' {
				out = append(out, batchItemFlag{name: r[:i], path: r[i+1:]})
				goto next
			}
		}
		return nil, fmt.Errorf("--item %q is not name=path", r)
	next:
	}
	return out, nil
}

func newPatchCmd(flags *rootFlags) *cobra.Command {
	var lun int
	var offset uint64
	var size uint32
	var start uint64
	var value, filename string

	cmd := &cobra.Command{
		Use:   "patch",
		Short: "Apply a single raw byte-offset patch",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := flags.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			_, err = runTicket(cmd, s, edl.Job{
				Kind: edl.JobPatch,
				Patches: []firehose.Patch{{
					ByteOffset:  offset,
					SizeInBytes: size,
					Filename:    filename,
					LUN:         lun,
					StartSector: start,
					Value:       value,
				}},
			}, "patch")
			return err
		},
	}
	cmd.Flags().IntVar(&lun, "lun", 0, "LUN")
	cmd.Flags().Uint64Var(&offset, "offset", 0, "byte offset within the sector")
	cmd.Flags().Uint32Var(&size, "size", 4, "patch size in bytes")
	cmd.Flags().Uint64Var(&start, "start", 0, "start sector")
	cmd.Flags().StringVar(&value, "value", "", "hex value, e.g. 0x1 (required)")
	cmd.MarkFlagRequired("value")
	cmd.Flags().StringVar(&filename, "filename", "", "Firehose filename attribute, if the target needs one")
	return cmd
}
