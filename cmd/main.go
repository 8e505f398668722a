package main

/*
* https://www.DIVD.nl
* released under the Apache 2.0 license
* https://www.apache.org/licenses/LICENSE-2.0
 */

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/DIVD-NL/onyphe-enrich/pkg/enricher"
	"github.com/DIVD-NL/onyphe-enrich/pkg/parser"
	"github.com/jessevdk/go-flags"
)

type Options struct {
	IPfile    string `short:"f" long:"file" description:"A file with one IP address per line (default stdin)" required:"false"`
	Output    string `short:"o" long:"output" description:"A file to write the enrichment report to (default output_TIMESTAMP.json)" required:"false"`
	APIKey    string `short:"k" long:"api-key" env:"ONYPHE_API_KEY" description:"Onyphe access token" required:"false"`
	PaidPlan  bool   `long:"paid-plan" description:"Paid Onyphe plan, enables pagination" required:"false"`
	MaxPage   int    `long:"max-page" default:"10" description:"Maximum number of pages to fetch per category (paid plans only)" required:"false"`
	AgeLimit  int    `long:"age-limit" default:"30" description:"Ignore records older than this many days, 0 = unlimited" required:"false"`
	NoVerify  bool   `long:"no-verify" description:"Do not verify that discovered hostnames still resolve" required:"false"`
	Abuse     bool   `long:"abuse" description:"Also look up abuse contacts for each IP via whois" required:"false"`
	RateLimit int    `long:"rate-limit" default:"3" description:"Maximum API requests per second" required:"false"`
	Debug     bool   `short:"d" long:"debug" description:"Enable debug logging" required:"false"`
}

func init() {
	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(logrus.InfoLevel)
	logrus.SetFormatter(&logrus.TextFormatter{ // json would be better
		DisableColors: true,
		FullTimestamp: true,
	})
}

func main() {
	options := Options{}
	goFlags := flags.NewParser(&options, flags.Default)

	_, err := goFlags.Parse()
	if err != nil {
		if errFlags, ok := err.(*flags.Error); ok && errFlags.Type == flags.ErrHelp {
			// flags automatically prints usage
			os.Exit(0)
		}
		logrus.Fatalf("Error parsing flags: %v", err)
	}

	// Set debug logging if requested
	if options.Debug {
		logrus.SetLevel(logrus.DebugLevel)
		logrus.Debug("Debug logging enabled")
	}

	if noOutputProvided := options.Output == ""; noOutputProvided {
		// Create a timestamped output filename
		timestamp := time.Now().Format("2006-01-02T15-04-05")
		options.Output = fmt.Sprintf("output_%s.json", timestamp)
	}

	ipParser := parser.Parser{}

	// Handle stdin input
	if options.IPfile == "" {
		stat, err := os.Stdin.Stat()
		if err != nil {
			logrus.Fatalf("Error getting stdin stat: %v", err)
		}
		if stat.Mode()&os.ModeNamedPipe == 0 {
			logrus.Fatalf("No input file provided and stdin is not a pipe")
		}

		ipParser = *ipParser.NewParser(os.Stdin)
		logrus.Info("Processing IP list from stdin")
	} else {
		file, err := os.Open(options.IPfile)
		if err != nil {
			logrus.Fatalf("Error opening input file: %v", err)
		}
		defer file.Close()

		ipParser = *ipParser.NewParser(file)
		logrus.Infof("Processing IP list: %s", options.IPfile)
	}

	if err := ipParser.ProcessIPList(); err != nil {
		logrus.Fatalf("Error parsing IP list: %v", err)
	}

	cfg := enricher.DefaultConfig()
	cfg.APIKey = options.APIKey
	cfg.PaidPlan = options.PaidPlan
	cfg.MaxPage = options.MaxPage
	cfg.AgeLimitDays = options.AgeLimit
	cfg.VerifyDomains = !options.NoVerify
	cfg.LookupAbuse = options.Abuse
	cfg.RateLimit = options.RateLimit

	// An interrupt aborts remaining work; the report keeps whatever was
	// emitted so far
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logrus.Infof("Enriching %d IP addresses via Onyphe", len(ipParser.Targets))
	ipParser.EnrichTargets(ctx, cfg)

	outputFile, err := os.Create(options.Output)
	if err != nil {
		logrus.Fatal(err)
	}
	defer outputFile.Close()

	logrus.Infof("Writing output to %s", options.Output)
	if err := ipParser.WriteOutput(outputFile); err != nil {
		logrus.Fatal(err)
	}

	logrus.Infof("Successfully processed %d targets and saved results to %s", len(ipParser.Reports), options.Output)
}
