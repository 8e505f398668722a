package parser

/*
* https://www.DIVD.nl
* released under the Apache 2.0 license
* https://www.apache.org/licenses/LICENSE-2.0
 */

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/DIVD-NL/onyphe-enrich/pkg/enricher"
	"github.com/DIVD-NL/onyphe-enrich/pkg/types"

	"github.com/sirupsen/logrus"
)

// Parser reads enrichment targets from an IP list and collects the
// per-target enrichment reports.
type Parser struct {
	*os.File
	Targets []types.SimpleIPRecord
	Reports types.ReportMap
}

func (p *Parser) NewParser(file *os.File) *Parser {
	return &Parser{
		File: file,
	}
}

// ReportSink collects emitted events into the report of the target
// currently being enriched. Targets are processed one at a time, so a
// single mutable report pointer is enough.
type ReportSink struct {
	Current *types.Report
}

func (s *ReportSink) Emit(ev types.Event) {
	if s.Current != nil {
		s.Current.Events = append(s.Current.Events, ev)
	}
}

// ProcessIPList parses the input as one IP address per line, skipping
// comments, duplicates, invalid addresses and addresses that are not
// globally routable.
func (p *Parser) ProcessIPList() error {
	logrus.Debug("parser: ProcessIPList - started parsing: ", p.File.Name())

	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(p.File)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		// Skip empty lines, comments, and lines too long to be valid IPs
		if line == "" || strings.HasPrefix(line, "#") || len(line) > 45 {
			continue
		}

		ip := net.ParseIP(line)
		if ip == nil {
			logrus.Debugf("parser: ProcessIPList - skipping invalid IP: %s", line)
			continue
		}
		if !ip.IsGlobalUnicast() {
			logrus.Debugf("parser: ProcessIPList - skipping non-global IP address: %s", line)
			continue
		}
		if ip.IsPrivate() {
			logrus.Debugf("parser: ProcessIPList - skipping private IP address: %s", line)
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}

		p.Targets = append(p.Targets, types.SimpleIPRecord{Ip: line})
	}

	if err := scanner.Err(); err != nil {
		logrus.Errorf("Error scanning file: %v", err)
		return fmt.Errorf("error scanning file: %w", err)
	}

	logrus.Debugf("parser: ProcessIPList - parsed %d valid IP addresses", len(p.Targets))
	return nil
}

// EnrichTargets runs the enrichment orchestrator for every parsed
// target, sequentially. The error-state latch is order sensitive, so
// targets are never enriched concurrently.
func (p *Parser) EnrichTargets(ctx context.Context, cfg enricher.Config) {
	logrus.Debugf("parser: EnrichTargets - started working on %d targets", len(p.Targets))

	p.Reports = make(types.ReportMap)
	sink := &ReportSink{}
	onypheEnricher := enricher.NewEnricher(cfg, sink)

	for _, target := range p.Targets {
		if ctx.Err() != nil {
			logrus.Warn("parser: EnrichTargets - stop requested, aborting remaining targets")
			return
		}

		logrus.Debug("enriching IP: ", target.Ip)
		report := &types.Report{Ip: target.Ip}
		sink.Current = report

		onypheEnricher.HandleIP(ctx, target.Ip, nil)
		p.Reports[target.Ip] = report
	}

	logrus.Debug("parser: EnrichTargets - ended")
}

// WriteOutput writes the enrichment reports as indented JSON, keyed by IP.
func (p *Parser) WriteOutput(outputFile *os.File) error {
	if len(p.Reports) == 0 {
		logrus.Warn("parser: WriteOutput - no reports to write")
		// Write an empty JSON object at minimum
		if _, err := outputFile.WriteString("{}\n"); err != nil {
			return fmt.Errorf("error writing output: %v", err)
		}
		return nil
	}

	encoder := json.NewEncoder(outputFile)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(p.Reports); err != nil {
		return fmt.Errorf("error writing output: %v", err)
	}

	logrus.Debug("parser: WriteOutput - ended")
	return nil
}
