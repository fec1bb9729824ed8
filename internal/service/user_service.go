package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/aryan0dhankhar/rulemaster/internal/domain"
)

// userLookupConcurrency bounds the per-user role and group lookups of a listing
const userLookupConcurrency = 8

// UserService onboards and lists users of the working realm
type UserService struct {
	dir    domain.DirectoryAdmin
	logger *slog.Logger
}

func NewUserService(dir domain.DirectoryAdmin, logger *slog.Logger) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{dir: dir, logger: logger}
}

// Onboard creates the user, places it in <group>/<group>_<kind> and grants the
// role to that child group so the user inherits it
func (s *UserService) Onboard(ctx context.Context, in domain.OnboardUser) (*domain.OnboardResult, error) {
	if err := validateOnboard(in); err != nil {
		return nil, err
	}
	log := s.logger.With(slog.String("username", in.Username))

	if err := s.checkDuplicates(ctx, in); err != nil {
		log.Warn("onboarding rejected", slog.String("error", err.Error()))
		return nil, err
	}

	// 1. user
	userID, err := s.dir.CreateUser(ctx, in)
	if errors.Is(err, domain.ErrConflict) {
		userID, err = s.lookupUserID(ctx, in.Username)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	// 2. parent group
	parentName := strings.ToLower(strings.TrimSpace(in.GroupName))
	parentID, err := s.getOrCreateGroup(ctx, parentName)
	if err != nil {
		return nil, err
	}

	// 3-4. child group
	roleName := strings.ToLower(strings.TrimSpace(in.RoleName))
	childName := ChildGroupName(parentName, roleName)
	childID, err := s.getOrCreateChildGroup(ctx, parentID, childName)
	if err != nil {
		return nil, err
	}

	// 5. membership
	if err := s.ensureMembership(ctx, userID, childID); err != nil {
		return nil, err
	}

	// 6. role
	role, err := s.getOrCreateRole(ctx, roleName)
	if err != nil {
		return nil, err
	}

	// 7. grant
	if err := s.dir.AssignRealmRoleToGroup(ctx, childID, *role); err != nil {
		return nil, fmt.Errorf("failed to assign role %s to group %s: %w", roleName, childName, err)
	}

	log.Info("user onboarded",
		slog.String("user_id", userID),
		slog.String("parent_group", parentName),
		slog.String("child_group", childName),
		slog.String("role", roleName),
	)
	return &domain.OnboardResult{
		UserID:      userID,
		ParentGroup: parentName,
		ChildGroup:  childName,
		Role:        roleName,
	}, nil
}

// ChildGroupName derives the sub-group a role is granted through:
// any "admin" role → <parent>_admin, any "user" role → <parent>_user,
// otherwise the last segment of the role name without its _role suffix.
func ChildGroupName(parent, role string) string {
	role = strings.ToLower(role)
	kind := ""
	switch {
	case strings.Contains(role, "admin"):
		kind = "admin"
	case strings.Contains(role, "user"):
		kind = "user"
	default:
		parts := strings.Split(strings.TrimSuffix(role, "_role"), "_")
		kind = parts[len(parts)-1]
		if kind == "" {
			kind = "user"
		}
	}
	return parent + "_" + kind
}

func validateOnboard(in domain.OnboardUser) error {
	var missing []string
	for name, v := range map[string]string{
		"username":  in.Username,
		"email":     in.Email,
		"password":  in.Password,
		"groupName": in.GroupName,
		"roleName":  in.RoleName,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: missing %s", domain.ErrValidation, strings.Join(missing, ", "))
	}
	if !strings.Contains(in.Email, "@") {
		return fmt.Errorf("%w: invalid email", domain.ErrValidation)
	}
	return nil
}

func (s *UserService) checkDuplicates(ctx context.Context, in domain.OnboardUser) error {
	byName, err := s.dir.FindUsers(ctx, map[string]string{"username": in.Username, "exact": "true"})
	if err != nil {
		return fmt.Errorf("failed to look up username: %w", err)
	}
	if len(byName) > 0 {
		if strings.EqualFold(byName[0].Email, in.Email) {
			return fmt.Errorf("%w: user and email already exist", domain.ErrConflict)
		}
		return fmt.Errorf("%w: username already exists", domain.ErrConflict)
	}

	byEmail, err := s.dir.FindUsers(ctx, map[string]string{"email": in.Email, "exact": "true"})
	if err != nil {
		return fmt.Errorf("failed to look up email: %w", err)
	}
	if len(byEmail) > 0 {
		return fmt.Errorf("%w: email already exists", domain.ErrConflict)
	}
	return nil
}

func (s *UserService) lookupUserID(ctx context.Context, username string) (string, error) {
	users, err := s.dir.FindUsers(ctx, map[string]string{"username": username, "exact": "true"})
	if err != nil {
		return "", err
	}
	if len(users) == 0 {
		return "", fmt.Errorf("user %s: %w", username, domain.ErrNotFound)
	}
	return users[0].ID, nil
}

func findGroup(groups []domain.Group, name string) (string, bool) {
	for _, g := range groups {
		if g.Name == name {
			return g.ID, true
		}
	}
	return "", false
}

func (s *UserService) getOrCreateGroup(ctx context.Context, name string) (string, error) {
	groups, err := s.dir.ListGroups(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list groups: %w", err)
	}
	if id, ok := findGroup(groups, name); ok {
		return id, nil
	}

	id, err := s.dir.CreateGroup(ctx, name)
	if err != nil && !errors.Is(err, domain.ErrConflict) {
		return "", fmt.Errorf("failed to create group %s: %w", name, err)
	}
	if id != "" {
		return id, nil
	}

	// created concurrently, or no Location header: read it back
	groups, err = s.dir.ListGroups(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list groups: %w", err)
	}
	if id, ok := findGroup(groups, name); ok {
		return id, nil
	}
	return "", fmt.Errorf("group %s missing after creation: %w", name, domain.ErrUpstream)
}

func (s *UserService) getOrCreateChildGroup(ctx context.Context, parentID, name string) (string, error) {
	children, err := s.dir.ListChildGroups(ctx, parentID)
	if err != nil {
		return "", fmt.Errorf("failed to list child groups: %w", err)
	}
	if id, ok := findGroup(children, name); ok {
		return id, nil
	}

	id, err := s.dir.CreateChildGroup(ctx, parentID, name)
	if err != nil && !errors.Is(err, domain.ErrConflict) {
		return "", fmt.Errorf("failed to create child group %s: %w", name, err)
	}
	if id != "" {
		return id, nil
	}

	children, err = s.dir.ListChildGroups(ctx, parentID)
	if err != nil {
		return "", fmt.Errorf("failed to list child groups: %w", err)
	}
	if id, ok := findGroup(children, name); ok {
		return id, nil
	}
	return "", fmt.Errorf("child group %s missing after creation: %w", name, domain.ErrUpstream)
}

func (s *UserService) ensureMembership(ctx context.Context, userID, groupID string) error {
	groups, err := s.dir.UserGroups(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to read user groups: %w", err)
	}
	for _, g := range groups {
		if g.ID == groupID {
			return nil
		}
	}
	if err := s.dir.AddUserToGroup(ctx, userID, groupID); err != nil {
		return fmt.Errorf("failed to add user to group: %w", err)
	}
	return nil
}

func (s *UserService) getOrCreateRole(ctx context.Context, name string) (*domain.Role, error) {
	role, err := s.dir.GetRealmRole(ctx, name)
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to read role %s: %w", name, err)
	}
	if err := s.dir.CreateRealmRole(ctx, name); err != nil && !errors.Is(err, domain.ErrConflict) {
		return nil, fmt.Errorf("failed to create role %s: %w", name, err)
	}
	role, err = s.dir.GetRealmRole(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read role %s: %w", name, err)
	}
	return role, nil
}

// ListUsersWithRolesAndGroups lists every user with realm role and group names.
// A failed lookup for one user is reported on that entry, not as an error.
func (s *UserService) ListUsersWithRolesAndGroups(ctx context.Context) ([]domain.IdentityUser, error) {
	users, err := s.dir.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	out := make([]domain.IdentityUser, len(users))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(userLookupConcurrency)
	for i, u := range users {
		g.Go(func() error {
			out[i] = s.enrich(gctx, u)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *UserService) enrich(ctx context.Context, u domain.IdentityUser) domain.IdentityUser {
	u.Roles, u.Groups = []string{}, []string{}

	roles, err := s.dir.UserRealmRoles(ctx, u.ID)
	if err == nil {
		var groups []domain.Group
		groups, err = s.dir.UserGroups(ctx, u.ID)
		if err == nil {
			for _, r := range roles {
				u.Roles = append(u.Roles, r.Name)
			}
			for _, g := range groups {
				u.Groups = append(u.Groups, g.Name)
			}
			return u
		}
	}

	s.logger.Warn("failed to fetch roles/groups",
		slog.String("user_id", u.ID),
		slog.String("error", err.Error()),
	)
	u.Error = "Failed to fetch roles/groups"
	return u
}
