package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// UserEmail fetches the email address bound to an access token, used by
// the Scheduled Workers' health check as its liveness probe after a token
// refresh. oauth2.Config has no built-in
// userinfo call, so this mirrors the teacher's GetUserEmail shape on a
// plain *http.Client rather than reinventing a second token-refresh path.
func (r *Refresher) UserEmail(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.UserInfoURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("oauth: userinfo request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oauth: userinfo failed: %d %s", resp.StatusCode, string(body))
	}

	var info struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return "", fmt.Errorf("oauth: parse userinfo: %w", err)
	}
	return info.Email, nil
}
