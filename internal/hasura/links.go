package hasura

import (
	"context"
	"encoding/json"
	"fmt"

	"linkloft/internal/model"
)

const insertLinksDoc = `
mutation insertLinks($objects: [links_insert_input!]!) {
  insert_links(objects: $objects) {
    returning {
      id
      platform
      url
      position
    }
  }
}`

const updateLinkDoc = `
mutation updateLink($id: uuid!, $platform: String!, $url: String!, $position: Int!) {
  update_links_by_pk(
    pk_columns: { id: $id }
    _set: { platform: $platform, url: $url, position: $position }
  ) {
    id
  }
}`

const deleteLinkDoc = `
mutation deleteLink($id: uuid!) {
  delete_links_by_pk(id: $id) {
    id
  }
}`

// InsertLinks creates all records in one batched mutation tagged with
// the owner key and returns the assigned remote ids in input order.
func (client *Client) InsertLinks(ctx context.Context, token string, links []model.Link, ownerKey string) ([]string, error) {
	objects := make([]map[string]any, 0, len(links))
	for _, l := range links {
		objects = append(objects, map[string]any{
			"platform": l.Platform,
			"url":      l.URL,
			"position": l.Position,
			"user_id":  ownerKey,
		})
	}

	data, err := client.do(ctx, token, insertLinksDoc, map[string]any{"objects": objects})
	if err != nil {
		return nil, err
	}

	var out struct {
		InsertLinks struct {
			Returning []struct {
				ID string `json:"id"`
			} `json:"returning"`
		} `json:"insert_links"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("hasura: decoding insert_links: %w", err)
	}
	ids := make([]string, 0, len(out.InsertLinks.Returning))
	for _, r := range out.InsertLinks.Returning {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// UpdateLink rewrites the mutable fields of one existing record.
func (client *Client) UpdateLink(ctx context.Context, token string, link model.Link) error {
	data, err := client.do(ctx, token, updateLinkDoc, map[string]any{
		"id":       link.ID,
		"platform": link.Platform,
		"url":      link.URL,
		"position": link.Position,
	})
	if err != nil {
		return err
	}
	var out struct {
		Updated *struct {
			ID string `json:"id"`
		} `json:"update_links_by_pk"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("hasura: decoding update_links_by_pk: %w", err)
	}
	if out.Updated == nil {
		return &APIError{StatusCode: 200, Message: fmt.Sprintf("link %s not found", link.ID)}
	}
	return nil
}

// DeleteLink removes one remotely persisted record by primary key. A
// record that is already gone is treated as deleted.
func (client *Client) DeleteLink(ctx context.Context, token, id string) error {
	_, err := client.do(ctx, token, deleteLinkDoc, map[string]any{"id": id})
	return err
}

// Bound adapts a Client plus a session token to the reconcile.Remote
// surface, so the engine never sees credentials.
type Bound struct {
	Client *Client
	Token  string
}

func (b Bound) DeleteLink(ctx context.Context, id string) error {
	return b.Client.DeleteLink(ctx, b.Token, id)
}

func (b Bound) InsertLinks(ctx context.Context, links []model.Link, ownerKey string) ([]string, error) {
	return b.Client.InsertLinks(ctx, b.Token, links, ownerKey)
}

func (b Bound) UpdateLink(ctx context.Context, link model.Link) error {
	return b.Client.UpdateLink(ctx, b.Token, link)
}
