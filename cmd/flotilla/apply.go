package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/harborworks/flotilla/pkg/client"
	"github.com/harborworks/flotilla/pkg/types"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a fleet manifest",
	Long: `Apply fleet resources from a YAML file. The file may hold several
documents separated by ---; each one is applied in order.

Examples:
  # Preregister the roster and set user budgets in one go
  flotilla apply -f fleet.yaml`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML file to apply (required)")
	_ = applyCmd.MarkFlagRequired("file")
}

// FleetResource is one document of an apply manifest.
type FleetResource struct {
	APIVersion string                 `yaml:"apiVersion"`
	Kind       string                 `yaml:"kind"`
	Metadata   ResourceMetadata       `yaml:"metadata"`
	Spec       map[string]interface{} `yaml:"spec"`
}

type ResourceMetadata struct {
	Name string `yaml:"name"`
}

func runApply(cmd *cobra.Command, args []string) error {
	initCLILogging()

	filename, _ := cmd.Flags().GetString("file")
	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	defer f.Close()

	cpt := newCaptainClient(cmd)
	dec := yaml.NewDecoder(f)
	for n := 1; ; n++ {
		var resource FleetResource
		if err := dec.Decode(&resource); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to parse document %d: %w", n, err)
		}
		if err := applyResource(cpt, &resource); err != nil {
			return fmt.Errorf("document %d: %w", n, err)
		}
	}
}

func applyResource(cpt *client.CaptainClient, resource *FleetResource) error {
	if resource.APIVersion != "" && resource.APIVersion != "flotilla/v1" {
		return fmt.Errorf("unsupported apiVersion: %s", resource.APIVersion)
	}

	switch resource.Kind {
	case "Sailor":
		return applySailor(cpt, resource)
	case "User":
		return applyUser(cpt, resource)
	default:
		return fmt.Errorf("unsupported resource kind: %s", resource.Kind)
	}
}

func applySailor(cpt *client.CaptainClient, resource *FleetResource) error {
	req := types.PreregRequest{
		Name:    resource.Metadata.Name,
		IP:      getString(resource.Spec, "ip", ""),
		MaxTime: getString(resource.Spec, "max_time", ""),
	}
	if req.Name == "" {
		return fmt.Errorf("sailor name is required")
	}
	if req.IP == "" {
		return fmt.Errorf("sailor ip is required")
	}
	if raw, ok := resource.Spec["services"].([]interface{}); ok {
		for _, v := range raw {
			req.Services = append(req.Services, fmt.Sprintf("%v", v))
		}
	}

	if err := cpt.Prereg(context.Background(), req); err != nil {
		return fmt.Errorf("failed to preregister sailor: %w", err)
	}
	fmt.Printf("Preregistered sailor %s (%s)\n", req.Name, req.IP)
	return nil
}

func applyUser(cpt *client.CaptainClient, resource *FleetResource) error {
	uid := getString(resource.Spec, "uid", "")
	if uid == "" {
		return fmt.Errorf("user uid is required")
	}

	req := types.UpsertUserRequest{UID: types.UserID(uid)}
	if resource.Metadata.Name != "" {
		name := resource.Metadata.Name
		req.Name = &name
	}
	if v, ok := resource.Spec["time_limit"]; ok {
		limit := fmt.Sprintf("%v", v)
		req.TimeLimit = &limit
	}
	if v, ok := resource.Spec["chores_limit"].(int); ok {
		limit := types.FlexInt(v)
		req.ChoresLimit = &limit
	}
	if v, ok := resource.Spec["notes"]; ok {
		notes := fmt.Sprintf("%v", v)
		req.Notes = &notes
	}

	if err := cpt.UpsertUser(context.Background(), req); err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	fmt.Printf("Updated user %s\n", uid)
	return nil
}

func getString(spec map[string]interface{}, key, fallback string) string {
	if v, ok := spec[key]; ok {
		return fmt.Sprintf("%v", v)
	}
	return fallback
}
