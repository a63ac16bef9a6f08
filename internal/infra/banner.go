package infra

import (
	"fmt"
	"strings"
)

// ANSI Color Codes
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorCyan   = "\033[36m"
)

// PrintBanner displays the startup banner with network-specific warnings.
func PrintBanner(cfg *Config) {
	network := strings.ToUpper(cfg.Venue.Network)
	version := cfg.App.Version

	color := ColorYellow
	desc := "UNKNOWN NETWORK"

	switch network {
	case "MAINNET":
		color = ColorRed
		desc = "LIVE ON-CHAIN TRADING"
	case "TESTNET":
		color = ColorCyan
		desc = "TESTNET (PLAY MONEY)"
	case "DEVNET", "LOCAL":
		color = ColorGreen
		desc = "LOCAL DEVELOPMENT"
	}

	fmt.Println()
	fmt.Printf("%s###########################################################%s\n", color, ColorReset)
	fmt.Printf("%s#                                                         #%s\n", color, ColorReset)
	fmt.Printf("%s#              🧭 Maker — Market Making Agent             #%s\n", color, ColorReset)
	fmt.Printf("%s#                                                         #%s\n", color, ColorReset)
	fmt.Printf("%s#   NETWORK: %-36s #%s\n", color, network, ColorReset)
	fmt.Printf("%s#   TYPE:    %-36s #%s\n", color, desc, ColorReset)
	fmt.Printf("%s#   VERSION: %-36s #%s\n", color, version, ColorReset)
	fmt.Printf("%s#                                                         #%s\n", color, ColorReset)

	if network == "MAINNET" {
		fmt.Printf("%s#   ⚠️  WARNING: ORDERS WILL BE SIGNED AND BROADCAST  ⚠️  #%s\n", ColorRed, ColorReset)
	}

	fmt.Printf("%s###########################################################%s\n", color, ColorReset)
	fmt.Println()
}
