package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/unclebandit/prospect-pipeline/internal/config"
	appErrors "github.com/unclebandit/prospect-pipeline/internal/errors"
)

const zapiService = "zapi"

type ZAPI struct {
	cfg  config.ZAPIConfig
	http *http.Client
}

func NewZAPI(cfg config.ZAPIConfig, timeout time.Duration) *ZAPI {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &ZAPI{cfg: cfg, http: &http.Client{Timeout: timeout}}
}

type zapiRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type zapiResponse struct {
	MessageID string `json:"messageId"`
	ZaapID    string `json:"zaapId"`
	ID        string `json:"id"`
}

func (z *ZAPI) Send(ctx context.Context, phoneE164, text string) (SendResult, error) {
	if z.cfg.InstanceID == "" {
		return SendResult{}, appErrors.NewConfigError("ZAPI_INSTANCE_ID")
	}
	if z.cfg.Token == "" {
		return SendResult{}, appErrors.NewConfigError("ZAPI_TOKEN")
	}

	payload, err := json.Marshal(zapiRequest{Phone: strings.TrimPrefix(phoneE164, "+"), Message: text})
	if err != nil {
		return SendResult{}, eris.Wrap(err, "zapi: marshal payload")
	}
	url := z.cfg.BaseURL + "/instances/" + z.cfg.InstanceID + "/token/" + z.cfg.Token + "/send-text"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return SendResult{}, eris.Wrap(err, "zapi: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if z.cfg.ClientToken != "" {
		req.Header.Set("Client-Token", z.cfg.ClientToken)
	}

	resp, err := z.http.Do(req)
	if err != nil {
		return SendResult{}, appErrors.NewUnreachable(zapiService, eris.Wrap(err, "zapi: send-text"))
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return SendResult{}, appErrors.NewCollaboratorError(zapiService, resp.StatusCode, string(body))
	}

	var out zapiResponse
	// body shape varies by account; an unparsable success is still a success
	_ = json.Unmarshal(body, &out)
	id := out.MessageID
	if id == "" {
		id = out.ZaapID
	}
	if id == "" {
		id = out.ID
	}
	return SendResult{ProviderMessageID: id}, nil
}
