package agent

import (
	"strconv"
	"strings"

	"command-center/core/models"
)

// Output is one artifact reported by a finished session
type Output struct {
	PullRequest *PullRequest `json:"pullRequest,omitempty"`
}

// PullRequest is the pull request output of a session
type PullRequest struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// MapState translates a remote session state into a local status. The
// mapping is total: states it does not recognise map to planning.
func MapState(state string, outputs []Output, planText string) (models.JobStatus, *models.PrDetails, *string) {
	switch strings.ToUpper(state) {
	case "WAITING_FOR_USER", "AWAITING_PLAN_APPROVAL", "AWAITING_USER_FEEDBACK":
		if planText == "" {
			return models.JobStatusWaitingApproval, nil, nil
		}
		plan := planText
		return models.JobStatusWaitingApproval, nil, &plan

	case "SUCCEEDED", "COMPLETED":
		for _, output := range outputs {
			if output.PullRequest == nil {
				continue
			}
			return models.JobStatusPrReady, &models.PrDetails{
				Number: prNumber(output.PullRequest.URL),
				URL:    output.PullRequest.URL,
				Title:  output.PullRequest.Title,
			}, nil
		}
		return models.JobStatusMerged, nil, nil

	case "RUNNING", "IN_PROGRESS":
		return models.JobStatusWorking, nil, nil
	}
	return models.JobStatusPlanning, nil, nil
}

// prNumber reads the trailing numeric segment of a pull request URL, or 0.
func prNumber(url string) int {
	url = strings.TrimRight(url, "/")
	idx := strings.LastIndex(url, "/")
	if idx < 0 {
		return 0
	}
	n, err := strconv.Atoi(url[idx+1:])
	if err != nil || n < 0 {
		return 0
	}
	return n
}
