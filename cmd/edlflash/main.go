// Command edlflash drives Qualcomm Sahara/Firehose and MediaTek BROM/DA
// emergency-download sessions from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// rootFlags holds the persistent flags every subcommand reads to open a
// Session (spec §6's CLI surface: --port, --baud, --storage, -v).
type rootFlags struct {
	port      string
	baud      int
	family    string
	storage   string
	verbose   bool
	noProtect bool
	configDir string
	keyTable  string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "edlflash",
		Short: "Flash and inspect Qualcomm/MediaTek devices in emergency download mode",
	}

	root.PersistentFlags().StringVar(&flags.port, "port", "", "serial port (e.g. /dev/ttyUSB0, COM3)")
	root.PersistentFlags().IntVar(&flags.baud, "baud", 0, "baud rate (0 = family default)")
	root.PersistentFlags().StringVar(&flags.family, "family", "qualcomm", "chip family: qualcomm|mediatek")
	root.PersistentFlags().StringVar(&flags.storage, "storage", "ufs", "storage kind: ufs|emmc|nand")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&flags.noProtect, "no-protect", false, "disable sensitive-partition protection (dangerous)")
	root.PersistentFlags().StringVar(&flags.configDir, "config-dir", "", "override config directory (default ~/.edlflash)")
	root.PersistentFlags().StringVar(&flags.keyTable, "key-table", "", "path to JSON key table for auth strategies")

	root.AddCommand(
		newIdentifyCmd(flags),
		newUploadLoaderCmd(flags),
		newConfigureCmd(flags),
		newGptCmd(flags),
		newReadCmd(flags),
		newWriteCmd(flags),
		newEraseCmd(flags),
		newBatchCmd(flags),
		newPatchCmd(flags),
		newSetBootLunCmd(flags),
		newRebootCmd(flags),
	)

	return root
}
