// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/clearproof/clearproof/cmd/proofctl/config"
	"github.com/clearproof/clearproof/pkg/ux"
	"github.com/clearproof/clearproof/services/verifier/datatypes"
)

// resolveClient builds a client from the config file plus CLI overrides.
func resolveClient() *verifierClient {
	url := config.Global.Server.URL
	if serverURL != "" {
		url = serverURL
	}
	timeout := time.Duration(config.Global.Server.TimeoutSeconds) * time.Second
	return newVerifierClient(url, timeout)
}

func resolveFormat() string {
	if outputFormat != "" {
		return outputFormat
	}
	if config.Global.Output.Format != "" {
		return config.Global.Output.Format
	}
	return "table"
}

func runVerify(cmd *cobra.Command, args []string) error {
	req := datatypes.VerifyRulesRequest{
		RuleIDs:      args,
		PrincipleIDs: principleIDs,
		Strategy:     strategy,
	}
	if req.Strategy == "" {
		req.Strategy = config.Global.Verify.Strategy
	}

	resp, err := resolveClient().Verify(cmd.Context(), req)
	if err != nil {
		return err
	}

	if resolveFormat() == "json" {
		return printJSON(resp)
	}
	printVerdictTable(resp)

	// A non-clean overall status is a non-zero exit so scripts can gate
	// on verification.
	if resp.OverallStatus != datatypes.OverallAllVerified {
		return fmt.Errorf("verification finished with status %s", resp.OverallStatus)
	}
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	if err := resolveClient().Health(cmd.Context()); err != nil {
		return err
	}
	ux.Success("verifier is healthy")
	return nil
}

func runResources(cmd *cobra.Command, args []string) error {
	out, err := resolveClient().Resources(cmd.Context())
	if err != nil {
		return err
	}
	return printJSON(out)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printVerdictTable(resp *datatypes.VerifyRulesResponse) {
	ux.Title("run %s", resp.RunID)
	fmt.Printf("overall=%s  duration=%s", ux.Verdict(string(resp.OverallStatus)), resp.Duration.Round(time.Millisecond))
	if resp.Cached {
		fmt.Print("  (cached)")
	}
	if resp.Degraded {
		fmt.Print("  " + ux.Styles.Warning.Render("(degraded)"))
	}
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RULE\tSTATUS\tCONFIDENCE\tCONSENSUS\tNOTES")
	for _, v := range resp.Results {
		notes := v.Message
		if v.Counterexample != "" {
			if notes != "" {
				notes += "; "
			}
			notes += "counterexample: " + v.Counterexample
		}
		if len(v.Conflicts) > 0 {
			if notes != "" {
				notes += "; "
			}
			notes += strings.Join(v.Conflicts, "; ")
		}
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%.2f\t%s\n",
			v.RuleID, v.Status, v.Confidence, v.ConsensusLevel, notes)
	}
	w.Flush()
}
