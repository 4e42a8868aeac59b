package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tebeka/atexit"

	"github.com/chrisdamba/dronesim/internal/models"
	"github.com/chrisdamba/dronesim/internal/repositories/postgres"
	"github.com/chrisdamba/dronesim/internal/simulator"
	"github.com/chrisdamba/dronesim/internal/stats"
)

var (
	cfgFile string
	envFile string
)

var rootCmd = &cobra.Command{
	Use:   "dronesim",
	Short: "Simulates drone food delivery from a single kitchen",
	Long: `dronesim is a discrete-event simulation of a kitchen that prepares orders with a
pool of chefs and flies them out with a fleet of battery-powered drones. It reports
how long orders wait for chefs and drones and how long delivery takes end to end.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			atexit.Exit(1)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if err := runSimulation(ctx, cfg, os.Stdout); err != nil {
			logrus.WithError(err).Error("simulation failed")
			atexit.Exit(1)
		}
	},
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.dronesim.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment is read")

	defaults := models.DefaultConfig()
	flags := rootCmd.PersistentFlags()
	flags.Int64("seed", defaults.Seed, "Random seed for simulation")
	flags.Int("chefs", defaults.ChefCount, "Number of chefs in the kitchen")
	flags.Int("drones", defaults.DroneCount, "Number of drones in the fleet")
	flags.Float64("arrival-rate", defaults.ArrivalRate, "Mean orders per minute")
	flags.Float64("horizon", defaults.Horizon, "Simulated minutes during which orders arrive")
	flags.Float64("dispatch-threshold", defaults.DispatchThreshold, "Battery level at which a charging drone may leave")
	flags.Bool("complete-in-flight", defaults.CompleteInFlight, "Keep running past the horizon until every order is delivered")
	flags.String("log-level", defaults.LogLevel, "Log level (debug, info, warn, error)")

	rootCmd.Flags().String("output-format", defaults.OutputFormat, "Event output: console, json, csv, parquet, kafka, sqlite, postgres or none")
	rootCmd.Flags().String("output-path", defaults.OutputPath, "Base directory for file outputs")
	rootCmd.Flags().String("kafka-broker-list", defaults.KafkaBrokerList, "Kafka broker list")
	rootCmd.Flags().String("database-url", defaults.Database.URL, "PostgreSQL URL; when set the run summary is stored there")
	rootCmd.Flags().Bool("progress", defaults.Progress, "Show a progress bar")

	bindFlags(flags, map[string]string{
		"seed":               "seed",
		"chefs":              "chef_count",
		"drones":             "drone_count",
		"arrival-rate":       "arrival_rate",
		"horizon":            "horizon",
		"dispatch-threshold": "dispatch_threshold",
		"complete-in-flight": "complete_in_flight",
		"log-level":          "log_level",
	})
	bindFlags(rootCmd.Flags(), map[string]string{
		"output-format":     "output_format",
		"output-path":       "output_path",
		"kafka-broker-list": "kafka_broker_list",
		"database-url":      "database.url",
		"progress":          "progress",
	})
}

// bindFlags maps each flag onto its config key, so that a flag only overrides
// the file and environment when it is set.
func bindFlags(flags *pflag.FlagSet, keys map[string]string) {
	for name, key := range keys {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			logrus.Panicf("binding flag %s: %v", name, err)
		}
	}
}

func initConfig() {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error loading %s: %v\n", envFile, err)
	}

	if cfgFile != "" {
		return
	}
	home, err := os.UserHomeDir()
	cobra.CheckErr(err)

	viper.AddConfigPath(home)
	viper.SetConfigType("yaml")
	viper.SetConfigName(".dronesim")
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func loadConfig() (*models.Config, error) {
	cfg, err := models.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	configureLogging(cfg.LogLevel)
	return cfg, nil
}

func configureLogging(level string) {
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.WithField("log_level", level).Warn("unknown log level, using info")
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
}

func runSimulation(ctx context.Context, cfg *models.Config, w io.Writer) error {
	var opts []simulator.Option
	if cfg.Progress {
		bar := progressbar.NewOptions64(int64(math.Ceil(cfg.Horizon)),
			progressbar.OptionSetDescription("simulating"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
		opts = append(opts, simulator.WithProgress(func(now, horizon float64) {
			_ = bar.Set64(int64(math.Min(now, horizon)))
		}))
	}

	sim, err := simulator.NewSimulator(cfg, opts...)
	if err != nil {
		return err
	}
	res, err := sim.Run(ctx)
	if err != nil {
		return err
	}

	if cfg.Database.URL != "" {
		if err := saveRun(ctx, cfg.Database.URL, res); err != nil {
			return fmt.Errorf("saving run %s: %w", res.RunID, err)
		}
	}
	printSummary(w, res)
	return nil
}

func saveRun(ctx context.Context, url string, res *simulator.Result) error {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return fmt.Errorf("unable to connect to database: %w", err)
	}
	defer pool.Close()

	repo := postgres.NewRunRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := repo.SaveRun(ctx, res.RunRecord()); err != nil {
		return err
	}
	n, err := repo.SaveOrders(ctx, res.RunID, res.Orders)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"run_id": res.RunID,
		"orders": n,
	}).Info("run saved")
	return nil
}

var summaryMetrics = []string{
	stats.ChefWaitTimes,
	stats.DroneWaitTimes,
	stats.DeliveryTimes,
	stats.PrepTimes,
	stats.RoundTripTimes,
	stats.OrderValues,
	stats.BatteryAtDispatch,
	stats.BatteryReadings,
}

func printSummary(w io.Writer, res *simulator.Result) {
	heading := color.New(color.FgCyan, color.Bold)
	heading.Fprintf(w, "Run %s\n", res.RunID)
	fmt.Fprintf(w, "orders completed %d, in flight %d, aborted %d, end time %.1f min\n",
		len(res.Orders), res.InFlight, res.Aborted, res.EndTime)
	fmt.Fprintf(w, "chef utilization %.1f%%, fleet utilization %.1f%%\n\n",
		100*res.ChefUtilization, 100*res.FleetUtilization)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "metric\tcount\tmean\tmin\tp50\tp95\tmax")
	for _, metric := range summaryMetrics {
		s := res.Stats.Summary(metric)
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\n",
			metric, s.Count, s.Mean, s.Min, s.P50, s.P95, s.Max)
	}
	tw.Flush()

	if res.PublishErrors > 0 {
		color.New(color.FgYellow).Fprintf(w, "%d records could not be written\n", res.PublishErrors)
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		atexit.Exit(1)
	}
	atexit.Exit(0)
}
