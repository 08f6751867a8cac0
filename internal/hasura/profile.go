package hasura

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"linkloft/internal/model"
)

// ErrUserNotFound is returned when a profile query matches no user. The
// data service answers such queries with an empty row set, not an error.
var ErrUserNotFound = errors.New("hasura: user not found")

const meDoc = `
query me($userId: String!) {
  users(where: { auth0_id: { _eq: $userId } }) {
    first_name
    last_name
    email
    image
    links(order_by: { position: asc }) {
      id
      platform
      url
      position
    }
  }
}`

const publicProfileDoc = `
query publicProfile($userId: String!) {
  users(where: { auth0_id: { _eq: $userId } }) {
    first_name
    last_name
    image
    links(order_by: { position: asc }) {
      id
      platform
      url
      position
    }
  }
}`

const upsertProfileDoc = `
mutation updateUserProfile($userId: String!, $first_name: String!, $last_name: String!, $email: String!, $image: String!) {
  update_users(
    _set: { first_name: $first_name, last_name: $last_name, email: $email, image: $image }
    where: { auth0_id: { _eq: $userId } }
  ) {
    returning {
      first_name
      last_name
      email
      image
    }
  }
}`

type userRow struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Image     string `json:"image"`
	Links     []struct {
		ID       string `json:"id"`
		Platform string `json:"platform"`
		URL      string `json:"url"`
		Position int    `json:"position"`
	} `json:"links"`
}

func (row userRow) toModel(userID string) (model.Profile, []model.Link) {
	profile := model.Profile{
		UserID:    userID,
		FirstName: row.FirstName,
		LastName:  row.LastName,
		Email:     row.Email,
		ImageURL:  row.Image,
	}
	links := make([]model.Link, 0, len(row.Links))
	for _, l := range row.Links {
		links = append(links, model.Link{ID: l.ID, Platform: l.Platform, URL: l.URL, Position: l.Position})
	}
	return profile, links
}

func (client *Client) userQuery(ctx context.Context, token, doc, userID string) (model.Profile, []model.Link, error) {
	data, err := client.do(ctx, token, doc, map[string]any{"userId": userID})
	if err != nil {
		return model.Profile{}, nil, err
	}
	var out struct {
		Users []userRow `json:"users"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return model.Profile{}, nil, fmt.Errorf("hasura: decoding users query: %w", err)
	}
	if len(out.Users) == 0 {
		return model.Profile{}, nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	profile, links := out.Users[0].toModel(userID)
	return profile, links, nil
}

// Me returns the authenticated user's profile and ordered links.
func (client *Client) Me(ctx context.Context, token, userID string) (model.Profile, []model.Link, error) {
	return client.userQuery(ctx, token, meDoc, userID)
}

// PublicProfile returns the read-only profile+links for the public page.
// No credential is attached; the service's anonymous role scopes fields.
func (client *Client) PublicProfile(ctx context.Context, userID string) (model.Profile, []model.Link, error) {
	return client.userQuery(ctx, "", publicProfileDoc, userID)
}

// UpsertProfile writes the whole profile record in one mutation keyed by
// the owner identity.
func (client *Client) UpsertProfile(ctx context.Context, token string, profile model.Profile) error {
	data, err := client.do(ctx, token, upsertProfileDoc, map[string]any{
		"userId":     profile.UserID,
		"first_name": profile.FirstName,
		"last_name":  profile.LastName,
		"email":      profile.Email,
		"image":      profile.ImageURL,
	})
	if err != nil {
		return err
	}
	var out struct {
		UpdateUsers struct {
			Returning []userRow `json:"returning"`
		} `json:"update_users"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("hasura: decoding update_users: %w", err)
	}
	if len(out.UpdateUsers.Returning) == 0 {
		return fmt.Errorf("%w: %s", ErrUserNotFound, profile.UserID)
	}
	return nil
}
