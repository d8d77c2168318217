package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/edlkit/edl"
)

func newIdentifyCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "identify",
		Short: "Run the boot-ROM handshake and print the chip identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := flags.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			id, err := s.Identify(cmd.Context())
			if err != nil {
				return err
			}
			printIdentity(id)
			return nil
		},
	}
}

func printIdentity(id edl.ChipIdentity) {
	fmt.Printf("mode:        %s\n", id.Mode)
	if id.ChipName != "" {
		fmt.Printf("chip:        %s (hw_code=0x%04x)\n", id.ChipName, id.HwCode)
		return
	}
	fmt.Printf("msm_id:      0x%08x\n", id.MsmID)
	fmt.Printf("oem_id:      0x%04x\n", id.OemID)
	fmt.Printf("model_id:    0x%04x\n", id.ModelID)
	fmt.Printf("sbl_version: 0x%08x\n", id.SblVersion)
}

func newUploadLoaderCmd(flags *rootFlags) *cobra.Command {
	var af authFlags
	var imagePath string

	cmd := &cobra.Command{
		Use:   "upload-loader",
		Short: "Upload a Firehose/DA loader image and authenticate if required",
		RunE: func(cmd *cobra.Command, args []string) error {
			image, err := os.ReadFile(imagePath)
			if err != nil {
				return fmt.Errorf("reading loader image: %w", err)
			}

			s, err := flags.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			if _, err := s.Identify(cmd.Context()); err != nil {
				return fmt.Errorf("identify: %w", err)
			}

			keys, err := flags.loadKeyStore()
			if err != nil {
				return err
			}
			strategy, err := buildAuthStrategy(af, keys)
			if err != nil {
				return err
			}
			if err := s.UploadLoader(cmd.Context(), image, strategy); err != nil {
				return err
			}
			fmt.Println("loader uploaded")
			return nil
		},
	}

	cmd.Flags().StringVar(&imagePath, "image", "", "path to the loader image (required)")
	cmd.MarkFlagRequired("image")
	cmd.Flags().StringVar(&af.strategy, "auth", "", "auth strategy: mtk-sla|oneplus|oplus-vip|xiaomi")
	cmd.Flags().StringVar(&af.hwCode, "hw-code", "", "mtk-sla: hardware code to look up in the key table")
	cmd.Flags().StringVar(&af.recipe, "recipe", "v1", "oneplus: recipe v1|v2|v3")
	cmd.Flags().StringVar(&af.serial, "serial", "", "oneplus: device serial")
	cmd.Flags().StringVar(&af.projID, "proj-id", "", "oneplus: project id")
	cmd.Flags().StringVar(&af.prodKey, "prod-key", "", "oneplus: vendor product key")
	cmd.Flags().StringVar(&af.postfix, "postfix", "", "oneplus: vendor postfix constant")
	cmd.Flags().StringVar(&af.timestamp, "timestamp", "", "oneplus v3: device-supplied timestamp")
	cmd.Flags().StringVar(&af.digestFile, "digest-file", "", "oplus-vip: path to digest blob")
	cmd.Flags().StringVar(&af.signatureFile, "signature-file", "", "oplus-vip: path to signature blob")

	return cmd
}

func newConfigureCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Negotiate storage type and sector size over Firehose",
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := flags.storageKind()
			if err != nil {
				return err
			}

			s, err := flags.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			profile, err := s.Configure(cmd.Context(), kind)
			if err != nil {
				return err
			}
			fmt.Printf("sector_size:     %d\n", profile.SectorSize)
			fmt.Printf("num_partitions:  %d\n", profile.NumPhysicalPartitions)
			return nil
		},
	}
}

func newGptCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "gpt",
		Short: "Read and print the partition table of every LUN",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := flags.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			kind, err := flags.storageKind()
			if err != nil {
				return err
			}
			if _, err := s.Configure(cmd.Context(), kind); err != nil {
				return err
			}

			entries, err := s.ReadPartitions(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("%-20s %4s %12s %12s\n", "name", "lun", "start", "sectors")
			for _, e := range entries {
				fmt.Printf("%-20s %4d %12d %12d\n", e.Name, e.LUN, e.StartSector, e.NumSectors)
			}
			return nil
		},
	}
}
