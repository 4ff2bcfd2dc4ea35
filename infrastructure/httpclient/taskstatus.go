package httpclient

import (
	"context"
	"net/url"
	"strings"

	"github.com/AzielCF/az-publish/publishing/domain"
)

// TaskStatusClient queries the "get task status" endpoint of an async
// generation service: GET <url>?taskId=<id>.
type TaskStatusClient struct {
	client  *Client
	baseURL string
	apiKey  string
}

func NewTaskStatusClient(client *Client, baseURL, apiKey string) *TaskStatusClient {
	return &TaskStatusClient{client: client, baseURL: baseURL, apiKey: apiKey}
}

// TaskStatusPayload is the body shape shared by the status endpoint and the
// callback. Only data is read.
type TaskStatusPayload struct {
	Code int            `json:"code"`
	Msg  string         `json:"msg"`
	Data TaskStatusData `json:"data"`
}

type TaskStatusData struct {
	TaskID       string `json:"taskId"`
	Status       string `json:"status"`
	ResultURL    string `json:"resultUrl"`
	ErrorMessage string `json:"errorMessage"`
	Response     struct {
		SunoData []struct {
			ID       string `json:"id"`
			AudioURL string `json:"audioUrl"`
		} `json:"sunoData"`
	} `json:"response"`
}

// Outcome parses the payload into a TaskOutcome at the boundary.
func (d TaskStatusData) Outcome() domain.TaskOutcome {
	resultURL := d.ResultURL
	if resultURL == "" {
		for _, item := range d.Response.SunoData {
			if item.AudioURL != "" {
				resultURL = item.AudioURL
				break
			}
		}
	}
	return domain.OutcomeFromExternal(d.Status, resultURL, d.ErrorMessage)
}

func (c *TaskStatusClient) Query(ctx context.Context, externalTaskID string) (domain.TaskOutcome, error) {
	sep := "?"
	if strings.Contains(c.baseURL, "?") {
		sep = "&"
	}
	target := c.baseURL + sep + "taskId=" + url.QueryEscape(externalTaskID)

	var payload TaskStatusPayload
	if err := c.client.jsonRequest(ctx, "GET", target, map[string]string{"Authorization": bearer(c.apiKey)}, nil, &payload); err != nil {
		return domain.TaskOutcome{}, err
	}
	return payload.Data.Outcome(), nil
}
