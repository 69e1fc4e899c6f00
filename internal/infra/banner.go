package infra

import (
	"fmt"
	"strings"
)

// ANSI color codes
const (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorCyan  = "\033[36m"
)

// PrintBanner displays the startup banner with mode-specific warnings.
func PrintBanner(cfg *Config) {
	mode := strings.ToUpper(cfg.Trading.Mode)
	version := cfg.App.Version

	color := colorCyan
	modeDesc := "SYNTHETIC DATA / NO REAL ORDERS"
	if mode == string(ModeLive) {
		color = colorRed
		modeDesc = "LIVE EXCHANGE TRADING"
	}

	fmt.Println()
	fmt.Printf("%s###########################################################%s\n", color, colorReset)
	fmt.Printf("%s#           HAIL MARY :: Trading Decision Core            #%s\n", color, colorReset)
	fmt.Printf("%s#   MODE:    %-44s #%s\n", color, mode, colorReset)
	fmt.Printf("%s#   TYPE:    %-44s #%s\n", color, modeDesc, colorReset)
	fmt.Printf("%s#   VERSION: %-44s #%s\n", color, version, colorReset)
	if mode == string(ModeLive) {
		fmt.Printf("%s#   WARNING: ORDERS WILL REACH THE REAL EXCHANGE          #%s\n", colorRed, colorReset)
	}
	fmt.Printf("%s###########################################################%s\n", color, colorReset)
	fmt.Println()
}
