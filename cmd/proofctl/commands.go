// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	serverURL    string // CLI override for server.url
	strategy     string // CLI override for verify.strategy
	principleIDs []string
	outputFormat string // "table" or "json"

	rootCmd = &cobra.Command{
		Use:   "proofctl",
		Short: "A cli to submit policy rules to the Clearproof verifier",
		Long: `Proofctl submits rule sets to a running Clearproof verifier
service and renders the per-rule verdicts.`,
	}

	verifyCmd = &cobra.Command{
		Use:   "verify [rule-id...]",
		Short: "Verify a set of rules against their governing principles",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runVerify, // Defined in cmd_verify.go
	}

	healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Check whether the verifier service is up",
		RunE:  runHealth, // Defined in cmd_verify.go
	}

	resourcesCmd = &cobra.Command{
		Use:   "resources",
		Short: "Show the verifier's resource sample and scaling state",
		RunE:  runResources, // Defined in cmd_verify.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "",
		"Verifier base URL (overrides the config file)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "",
		"Output format: table or json (overrides the config file)")

	verifyCmd.Flags().StringVar(&strategy, "strategy", "",
		"Aggregation strategy (majority_vote, weighted_average, byzantine_fault_tolerant, consensus_threshold, first_valid)")
	verifyCmd.Flags().StringSliceVar(&principleIDs, "principle", nil,
		"Principle ids whose obligations every rule must satisfy (repeatable)")

	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(resourcesCmd)
}
