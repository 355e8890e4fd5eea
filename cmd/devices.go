package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/smazurov/v4lstream/internal/devices"
	"github.com/spf13/cobra"
)

// CreateListCmd creates the list command.
func CreateListCmd() *cobra.Command {
	var verbose, logJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List V4L2 capture and output devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			initLogging(verbose, logJSON)

			list, err := devices.List()
			if err != nil {
				return err
			}
			return printDevices(cmd.OutOrStdout(), list)
		},
	}
	addLoggingFlags(cmd, &verbose, &logJSON)
	return cmd
}

func printDevices(out io.Writer, list []devices.Device) error {
	if len(list) == 0 {
		_, err := fmt.Fprintln(out, "no video devices found")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tNAME\tID\tROLE")
	for _, d := range list {
		var roles []string
		if d.Capture {
			roles = append(roles, "capture")
		}
		if d.Output {
			roles = append(roles, "output")
		}
		if d.Streaming() {
			roles = append(roles, "streaming")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Path, d.Name, d.ID, strings.Join(roles, ","))
	}
	return tw.Flush()
}

// CreateInfoCmd creates the info command.
func CreateInfoCmd() *cobra.Command {
	var device string
	var verbose, logJSON bool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show capability, current format and streaming parameters of a device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			initLogging(verbose, logJSON)

			path, err := devices.Resolve(device)
			if err != nil {
				return err
			}
			desc, err := devices.Describe(path, false)
			if err != nil {
				return err
			}
			return printInfo(cmd.OutOrStdout(), desc)
		},
	}
	cmd.Flags().StringVarP(&device, "device", "d", "0", "Device index, path or stable ID")
	addLoggingFlags(cmd, &verbose, &logJSON)
	return cmd
}

func printInfo(out io.Writer, desc *devices.Description) error {
	c := desc.Capability
	fmt.Fprintf(out, "device       : %s\n", desc.Path)
	fmt.Fprintf(out, "driver       : %s %s\n", c.Driver, c.Version)
	fmt.Fprintf(out, "card         : %s\n", c.Card)
	fmt.Fprintf(out, "bus          : %s\n", c.BusInfo)
	fmt.Fprintf(out, "capabilities : %#08x\n", c.Effective())
	fmt.Fprintf(out, "direction    : %s\n\n", desc.Direction)
	fmt.Fprint(out, desc.Current.String())
	if desc.Params != nil {
		fmt.Fprintln(out)
		fmt.Fprint(out, desc.Params.String())
	}
	return nil
}

// CreateFormatsCmd creates the formats command.
func CreateFormatsCmd() *cobra.Command {
	var device string
	var sizes bool
	var verbose, logJSON bool

	cmd := &cobra.Command{
		Use:   "formats",
		Short: "Enumerate pixel formats, frame sizes and frame intervals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			initLogging(verbose, logJSON)

			path, err := devices.Resolve(device)
			if err != nil {
				return err
			}
			desc, err := devices.Describe(path, sizes)
			if err != nil {
				return err
			}
			return printFormats(cmd.OutOrStdout(), desc)
		},
	}
	cmd.Flags().StringVarP(&device, "device", "d", "0", "Device index, path or stable ID")
	cmd.Flags().BoolVar(&sizes, "sizes", true, "Also list frame sizes and intervals")
	addLoggingFlags(cmd, &verbose, &logJSON)
	return cmd
}

func printFormats(out io.Writer, desc *devices.Description) error {
	fmt.Fprintf(out, "%s (%s)\n", desc.Path, desc.Direction)
	for _, f := range desc.Formats {
		fmt.Fprintf(out, "  %s\n", f.FormatDesc)
		for _, s := range f.Sizes {
			suffix := ""
			if s.Stepwise {
				suffix = " (stepwise)"
			}
			rates := make([]string, 0, len(s.Intervals))
			for _, iv := range s.Intervals {
				rates = append(rates, fmt.Sprintf("%.2f", iv.FPS()))
			}
			fmt.Fprintf(out, "    %s%s", s.Resolution, suffix)
			if len(rates) > 0 {
				fmt.Fprintf(out, " @ %s fps", strings.Join(rates, ", "))
			}
			fmt.Fprintln(out)
		}
	}
	return nil
}
