package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edlkit/edl"
)

func newSetBootLunCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "set-boot-lun",
		Short: "Invoke setbootablestoragedrive for the active A/B slot",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := flags.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			_, err = runTicket(cmd, s, edl.Job{Kind: edl.JobSetBoot}, "set-boot-lun")
			return err
		},
	}
}

func newRebootCmd(flags *rootFlags) *cobra.Command {
	var value string

	cmd := &cobra.Command{
		Use:   "reboot",
		Short: "Send a power command (reset, poweroff, edl)",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := flags.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			_, err = runTicket(cmd, s, edl.Job{Kind: edl.JobReboot, PowerValue: value}, "reboot")
			if err != nil {
				return err
			}
			fmt.Println("power command sent")
			return nil
		},
	}
	cmd.Flags().StringVar(&value, "value", "reset", "power value: reset|poweroff|edl")
	return cmd
}
