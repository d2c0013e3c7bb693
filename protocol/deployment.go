package protocol

import "time"

// Deployment stage identifiers reported by the backend
const (
	StageRepoClone       = "repo_clone"
	StageCodeAnalysis    = "code_analysis"
	StageDockerfileGen   = "dockerfile_generation"
	StageSecurityScan    = "security_scan"
	StageContainerBuild  = "container_build"
	StageCloudDeployment = "cloud_deployment"
)

// Stage statuses
const (
	StatusInProgress = "in-progress"
	StatusSuccess    = "success"
	StatusError      = "error"
)

// DeploymentProgress is the payload of a "deployment_progress" frame.
type DeploymentProgress struct {
	DeploymentID string         `json:"deployment_id"`
	Stage        string         `json:"stage"`
	Status       string         `json:"status"`
	Message      string         `json:"message"`
	Timestamp    string         `json:"timestamp"` // ISO 8601, no zone
	Details      map[string]any `json:"details,omitempty"`
	Progress     *int           `json:"progress,omitempty"`
}

// DecodeDeploymentProgress decodes a deployment_progress frame.
func DecodeDeploymentProgress(msg ServerMessage) (*DeploymentProgress, error) {
	if msg.Type != TypeDeploymentProgress {
		return nil, ErrMalformedMessage
	}
	var p DeploymentProgress
	if err := msg.Decode(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Done reports whether the stage has finished, successfully or not.
func (p *DeploymentProgress) Done() bool {
	return p.Status == StatusSuccess || p.Status == StatusError
}

// Final reports whether the deployment as a whole has ended: any stage
// failed, or the last stage succeeded.
func (p *DeploymentProgress) Final() bool {
	return p.Status == StatusError || (p.Stage == StageCloudDeployment && p.Status == StatusSuccess)
}

// Time parses Timestamp. The backend emits local time without a zone
// designator, so the result is interpreted in loc.
func (p *DeploymentProgress) Time(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation("2006-01-02T15:04:05.999999", p.Timestamp, loc)
}
