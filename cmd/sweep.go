package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/chrisdamba/dronesim/internal/simulator"
)

var sweepSpec simulator.SweepSpec
var sweepJSON bool

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Compares delivery times across chef and drone counts",
	Long: `sweep runs the simulation for every combination of the given chef and drone
counts, averages each combination over several seeds and highlights the one with
the lowest mean delivery time.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			atexit.Exit(1)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		points, err := simulator.Sweep(ctx, cfg, sweepSpec)
		if err != nil {
			logrus.WithError(err).Error("sweep failed")
			atexit.Exit(1)
		}

		if sweepJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(points); err != nil {
				logrus.WithError(err).Error("encoding sweep results")
				atexit.Exit(1)
			}
			return
		}
		printSweep(os.Stdout, points)
	},
}

func init() {
	sweepCmd.Flags().IntSliceVar(&sweepSpec.Chefs, "chef-counts", []int{1, 2, 3, 4}, "Chef counts to compare")
	sweepCmd.Flags().IntSliceVar(&sweepSpec.Drones, "drone-counts", []int{2, 4, 6, 8, 10}, "Drone counts to compare")
	sweepCmd.Flags().IntVar(&sweepSpec.Replications, "replications", 5, "Seeds per combination")
	sweepCmd.Flags().IntVar(&sweepSpec.Parallelism, "parallel", 0, "Concurrent runs (default is the number of CPUs)")
	sweepCmd.Flags().BoolVar(&sweepJSON, "json", false, "Print the results as JSON")
	rootCmd.AddCommand(sweepCmd)
}

func printSweep(w io.Writer, points []simulator.SweepPoint) {
	best, found := simulator.Best(points)
	highlight := color.New(color.FgGreen, color.Bold)

	// escape codes would throw off tabwriter, so the table marks the best
	// row and only the closing line is colored
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tchefs\tdrones\torders\tchef wait\tdrone wait\tdelivery\tfleet util")
	for _, p := range points {
		mark := ""
		if found && p.Chefs == best.Chefs && p.Drones == best.Drones {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.1f\t%.2f\t%.2f\t%.2f\t%.1f%%\n",
			mark, p.Chefs, p.Drones, p.Orders, p.MeanChefWait, p.MeanDroneWait, p.MeanDeliveryTime, 100*p.FleetUtilization)
	}
	tw.Flush()

	if found {
		highlight.Fprintf(w, "\nbest: %d chefs, %d drones, mean delivery %.2f min\n",
			best.Chefs, best.Drones, best.MeanDeliveryTime)
	}
}
