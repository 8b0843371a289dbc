package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"undetected/internal/adapters/exports"
	"undetected/internal/estimator"
	"undetected/pkg/domain"
)

var (
	okMark   = color.New(color.FgGreen).Sprint("✓")
	idColor  = color.New(color.FgCyan)
	dimColor = color.New(color.FgHiBlack)
)

func printRun(w io.Writer, run domain.RunRecord) {
	fmt.Fprintf(w, "%s %s run %s (%d rows, %.0f ms)\n",
		okMark, run.Kind, idColor.Sprint(run.ID), len(run.Result.Rows), run.DurationMS)
}

func printBand(w io.Writer, label string, b estimator.Band) {
	fmt.Fprintf(w, "  %-16s %s %s\n", label, color.New(color.Bold).Sprintf("%.4g", b.Mean),
		dimColor.Sprintf("[%.4g, %.4g]", b.Lo, b.Hi))
}

func printSummary(w io.Writer, sum estimator.Summary) {
	printBand(w, "N_total", sum.Total)
	printBand(w, "extinction rate", sum.Rate)
	if sum.Excursions > 0 {
		fmt.Fprintf(w, "  %s\n", color.New(color.FgYellow).Sprintf("%d impossible-region excursions", sum.Excursions))
	}
}

func printArtifacts(w io.Writer, artifacts []exports.Artifact) {
	for _, art := range artifacts {
		fmt.Fprintf(w, "  %-5s %s %s\n", art.Format, art.Key, dimColor.Sprintf("(%d bytes)", art.SizeBytes))
		if art.URL != "" {
			fmt.Fprintf(w, "        %s\n", art.URL)
		}
	}
}
