package tower

import (
	"context"
	"net/http"

	"towerrunner/internal/apperrors"
)

// Resolve looks up a job template by exact name and returns its id.
// An empty or unreadable listing is apperrors.ErrTemplateNotFound; any status
// other than 200 is apperrors.ErrRemote.
func (c *Client) Resolve(ctx context.Context, name string) (string, error) {
	resp, err := c.get(ctx, TemplateLookupURL(c.host, name))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", apperrors.Remote("tower.resolveTemplate", resp.StatusCode, resp.Message())
	}

	var list templateList
	if err := resp.Decode(&list); err != nil {
		c.logger.Warn("Unreadable template listing", "template", name, "error", err)
		return "", apperrors.TemplateNotFound(name)
	}
	if len(list.Results) == 0 || list.Results[0].ID == "" {
		return "", apperrors.TemplateNotFound(name)
	}
	if len(list.Results) > 1 {
		c.logger.Warn("Template name matched more than once, using first result", "template", name, "matches", len(list.Results))
	}

	return string(list.Results[0].ID), nil
}
