package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ashureev/deskroute/internal/classifier"
)

var classifyPolicyFile string

var classifyCmd = &cobra.Command{
	Use:   "classify [text...]",
	Short: "Classify a support message with the keyword classifier",
	Long: `Runs the keyword classifier on the given text and prints the category,
label, confidence and matched keywords as JSON.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runClassify,
}

func init() {
	classifyCmd.Flags().StringVar(&classifyPolicyFile, "policy", os.Getenv("POLICY_FILE"),
		"YAML classifier policy file (defaults to the built-in policy)")
}

func runClassify(cmd *cobra.Command, args []string) error {
	setupLogger(slog.LevelWarn)

	policy, err := loadPolicy(classifyPolicyFile)
	if err != nil {
		return err
	}

	kc := classifier.NewKeywordClassifier(policy)
	res := kc.Classify(strings.Join(args, " "))

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("encode classification: %w", err)
	}
	return nil
}

// loadPolicy returns the policy in path, or the built-in policy when path
// is empty.
func loadPolicy(path string) (classifier.Policy, error) {
	if path == "" {
		return classifier.DefaultPolicy(), nil
	}
	p, err := classifier.LoadPolicyFile(path)
	if err != nil {
		return classifier.Policy{}, err
	}
	return *p, nil
}
