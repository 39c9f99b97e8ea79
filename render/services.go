package render

import (
	"context"
	"encoding/json"
	"fmt"
)

type ServicesService struct {
	client *Client
}

type EnvVar struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type CreateServiceRequest struct {
	Type           string         `json:"type"`
	Name           string         `json:"name"`
	OwnerID        string         `json:"ownerId"`
	Repo           string         `json:"repo"`
	Branch         string         `json:"branch"`
	AutoDeploy     string         `json:"autoDeploy,omitempty"`
	EnvVars        []EnvVar       `json:"envVars,omitempty"`
	ServiceDetails ServiceDetails `json:"serviceDetails"`
}

type ServiceDetails struct {
	Runtime            string             `json:"runtime"`
	Plan               string             `json:"plan,omitempty"`
	Region             string             `json:"region,omitempty"`
	EnvSpecificDetails EnvSpecificDetails `json:"envSpecificDetails"`
}

type EnvSpecificDetails struct {
	BuildCommand string `json:"buildCommand,omitempty"`
	StartCommand string `json:"startCommand,omitempty"`
}

type Service struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Repo      string `json:"repo"`
	Branch    string `json:"branch"`
	CreatedAt string `json:"createdAt"`
}

type createServiceResponse struct {
	Service  Service `json:"service"`
	DeployID string  `json:"deployId"`
}

// CreatedService carries the decoded service alongside the untouched response.
type CreatedService struct {
	Service  Service
	DeployID string
	Raw      json.RawMessage
}

// Create requests a new service. OwnerID defaults to the client's workspace.
func (s *ServicesService) Create(ctx context.Context, req *CreateServiceRequest) (*CreatedService, error) {
	if req == nil {
		return nil, fmt.Errorf("render: request is required")
	}
	if req.OwnerID == "" {
		req.OwnerID = s.client.config.OwnerID
	}
	if req.Type == "" {
		req.Type = "web_service"
	}

	var resp createServiceResponse
	raw, err := s.client.do(ctx, "POST", "/services", nil, req, &resp)
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}

	return &CreatedService{
		Service:  resp.Service,
		DeployID: resp.DeployID,
		Raw:      json.RawMessage(raw),
	}, nil
}
