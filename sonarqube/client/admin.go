package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// User is the payload for user creation and updates.
type User struct {
	Login    string
	Name     string
	Email    string
	Password string
}

// ProjectExists reports whether a project is visible to the token.
func (c *SonarQubeClient) ProjectExists(ctx context.Context, projectKey string) (bool, error) {
	params := url.Values{}
	params.Set("component", projectKey)

	_, err := c.doRequest(ctx, http.MethodGet, "/api/components/show", params)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check project %s: %w", projectKey, err)
	}
	return true, nil
}

// CreateGroup creates a user group.
func (c *SonarQubeClient) CreateGroup(ctx context.Context, name, description string) error {
	params := url.Values{}
	params.Set("name", name)
	if description != "" {
		params.Set("description", description)
	}
	if _, err := c.doRequest(ctx, http.MethodPost, "/api/user_groups/create", params); err != nil {
		return fmt.Errorf("failed to create group %s: %w", name, err)
	}
	return nil
}

// DeleteGroup deletes a user group. Deleting a missing group surfaces the remote 404.
func (c *SonarQubeClient) DeleteGroup(ctx context.Context, name string) error {
	params := url.Values{}
	params.Set("name", name)
	if _, err := c.doRequest(ctx, http.MethodPost, "/api/user_groups/delete", params); err != nil {
		return fmt.Errorf("failed to delete group %s: %w", name, err)
	}
	return nil
}

// GroupExists reports whether a group with exactly this name exists.
func (c *SonarQubeClient) GroupExists(ctx context.Context, name string) (bool, error) {
	params := url.Values{}
	params.Set("q", name)

	var response struct {
		Groups []struct {
			Name string `json:"name"`
		} `json:"groups"`
	}
	if err := c.getJSON(ctx, "/api/user_groups/search", params, &response); err != nil {
		return false, fmt.Errorf("failed to search group %s: %w", name, err)
	}
	for _, g := range response.Groups {
		if g.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// CreateUser creates a local user.
func (c *SonarQubeClient) CreateUser(ctx context.Context, user User) error {
	params := url.Values{}
	params.Set("login", user.Login)
	params.Set("name", user.Name)
	if user.Email != "" {
		params.Set("email", user.Email)
	}
	if user.Password != "" {
		params.Set("password", user.Password)
	}
	if _, err := c.doRequest(ctx, http.MethodPost, "/api/users/create", params); err != nil {
		return fmt.Errorf("failed to create user %s: %w", user.Login, err)
	}
	return nil
}

// UpdateUser updates name and email of an existing user.
func (c *SonarQubeClient) UpdateUser(ctx context.Context, user User) error {
	params := url.Values{}
	params.Set("login", user.Login)
	if user.Name != "" {
		params.Set("name", user.Name)
	}
	if user.Email != "" {
		params.Set("email", user.Email)
	}
	if _, err := c.doRequest(ctx, http.MethodPost, "/api/users/update", params); err != nil {
		return fmt.Errorf("failed to update user %s: %w", user.Login, err)
	}
	return nil
}

// DeactivateUser deactivates (SonarQube's delete) a user.
func (c *SonarQubeClient) DeactivateUser(ctx context.Context, login string) error {
	params := url.Values{}
	params.Set("login", login)
	if _, err := c.doRequest(ctx, http.MethodPost, "/api/users/deactivate", params); err != nil {
		return fmt.Errorf("failed to deactivate user %s: %w", login, err)
	}
	return nil
}
