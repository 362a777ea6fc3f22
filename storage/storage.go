package storage

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"

	"kata-board/domain"
)

const (
	projectPartition = "project"
	userPartition    = "user"
)

type queueClient interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// Storage provides access to underlying persistence mechanisms.
type Storage struct {
	projectTable *aztables.Client
	userTable    *aztables.Client
	changeQueue  queueClient
}

// New creates a Storage instance from the given connection string.
func New(connStr, projectsTable, usersTable, changesQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	cq, err := azqueue.NewQueueClientFromConnectionString(connStr, changesQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{
		projectTable: svc.NewClient(projectsTable),
		userTable:    svc.NewClient(usersTable),
		changeQueue:  cq,
	}, nil
}

// projectEntity stores list fields as JSON strings; table columns are scalar.
type projectEntity struct {
	aztables.Entity
	Name   string `json:"Name"`
	Items  string `json:"Items"`
	Access string `json:"Access"`
}

type userEntity struct {
	aztables.Entity
	Email        string `json:"Email"`
	UserName     string `json:"UserName"`
	Role         string `json:"Role"`
	PasswordHash string `json:"PasswordHash"`
}

func encodeProject(p domain.Project) ([]byte, error) {
	items, err := sonic.MarshalString(nonNilItems(p.Items))
	if err != nil {
		return nil, err
	}
	access, err := sonic.MarshalString(nonNilStrings(p.Access))
	if err != nil {
		return nil, err
	}
	return sonic.Marshal(projectEntity{
		Entity: aztables.Entity{PartitionKey: projectPartition, RowKey: p.Key},
		Name:   p.Name,
		Items:  items,
		Access: access,
	})
}

func decodeProjectEntity(data []byte) (domain.Project, error) {
	var ent projectEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return domain.Project{}, err
	}
	p := domain.Project{Key: ent.RowKey, Name: ent.Name, Items: []domain.HU{}, Access: []string{}}
	if ent.Items != "" {
		if err := sonic.UnmarshalString(ent.Items, &p.Items); err != nil {
			return domain.Project{}, err
		}
	}
	if ent.Access != "" {
		if err := sonic.UnmarshalString(ent.Access, &p.Access); err != nil {
			return domain.Project{}, err
		}
	}
	return p, nil
}

func encodeUser(u domain.User) ([]byte, error) {
	return sonic.Marshal(userEntity{
		Entity:       aztables.Entity{PartitionKey: userPartition, RowKey: u.CC},
		Email:        u.Email,
		UserName:     u.UserName,
		Role:         u.Role,
		PasswordHash: u.PasswordHash,
	})
}

func decodeUserEntity(data []byte) (domain.User, error) {
	var ent userEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return domain.User{}, err
	}
	return domain.User{
		CC:           ent.RowKey,
		Email:        ent.Email,
		UserName:     ent.UserName,
		Role:         ent.Role,
		PasswordHash: ent.PasswordHash,
	}, nil
}

// ListProjects retrieves every project.
func (s *Storage) ListProjects(ctx context.Context) ([]domain.Project, error) {
	filter := "PartitionKey eq '" + projectPartition + "'"
	pager := s.projectTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	projects := []domain.Project{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			p, err := decodeProjectEntity(e)
			if err != nil {
				return nil, err
			}
			projects = append(projects, p)
		}
	}
	return projects, nil
}

func (s *Storage) GetProject(ctx context.Context, key string) (domain.Project, error) {
	ent, err := s.projectTable.GetEntity(ctx, projectPartition, key, nil)
	if err != nil {
		return domain.Project{}, mapResponseError(err, domain.ErrProjectNotFound, domain.ErrProjectExists)
	}
	return decodeProjectEntity(ent.Value)
}

func (s *Storage) CreateProject(ctx context.Context, p domain.Project) error {
	payload, err := encodeProject(p)
	if err != nil {
		return err
	}
	_, err = s.projectTable.AddEntity(ctx, payload, nil)
	return mapResponseError(err, domain.ErrProjectNotFound, domain.ErrProjectExists)
}

// UpdateProject replaces the stored project. Last write wins.
func (s *Storage) UpdateProject(ctx context.Context, key string, upd domain.ProjectUpdate) error {
	payload, err := encodeProject(domain.Project{Key: key, Name: upd.Name, Items: upd.Items, Access: upd.Access})
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.projectTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeReplace})
	return mapResponseError(err, domain.ErrProjectNotFound, domain.ErrProjectExists)
}

func (s *Storage) DeleteProject(ctx context.Context, key string) error {
	_, err := s.projectTable.DeleteEntity(ctx, projectPartition, key, nil)
	return mapResponseError(err, domain.ErrProjectNotFound, domain.ErrProjectExists)
}

func (s *Storage) ListUsers(ctx context.Context) ([]domain.User, error) {
	filter := "PartitionKey eq '" + userPartition + "'"
	pager := s.userTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	users := []domain.User{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			u, err := decodeUserEntity(e)
			if err != nil {
				return nil, err
			}
			users = append(users, u)
		}
	}
	return users, nil
}

func (s *Storage) GetUser(ctx context.Context, cc string) (domain.User, error) {
	ent, err := s.userTable.GetEntity(ctx, userPartition, cc, nil)
	if err != nil {
		return domain.User{}, mapResponseError(err, domain.ErrUserNotFound, domain.ErrUserExists)
	}
	return decodeUserEntity(ent.Value)
}

func (s *Storage) CreateUser(ctx context.Context, u domain.User) error {
	payload, err := encodeUser(u)
	if err != nil {
		return err
	}
	_, err = s.userTable.AddEntity(ctx, payload, nil)
	return mapResponseError(err, domain.ErrUserNotFound, domain.ErrUserExists)
}

func (s *Storage) UpdateUser(ctx context.Context, u domain.User) error {
	payload, err := encodeUser(u)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.userTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeReplace})
	return mapResponseError(err, domain.ErrUserNotFound, domain.ErrUserExists)
}

func (s *Storage) DeleteUser(ctx context.Context, cc string) error {
	_, err := s.userTable.DeleteEntity(ctx, userPartition, cc, nil)
	return mapResponseError(err, domain.ErrUserNotFound, domain.ErrUserExists)
}

// PublishChange sends a change notice to the changes queue.
func (s *Storage) PublishChange(ctx context.Context, n domain.ChangeNotice) error {
	data, err := sonic.MarshalString(n)
	if err != nil {
		return err
	}
	_, err = s.changeQueue.EnqueueMessage(ctx, data, nil)
	return err
}

// mapResponseError converts table 404/409 responses to domain errors.
func mapResponseError(err, notFound, exists error) error {
	if err == nil {
		return nil
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusNotFound:
			return notFound
		case http.StatusConflict:
			return exists
		}
	}
	return err
}

func nonNilItems(items []domain.HU) []domain.HU {
	if items == nil {
		return []domain.HU{}
	}
	return items
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
