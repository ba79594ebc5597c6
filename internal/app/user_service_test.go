package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jsamuelsen/tracecontext-service/internal/domain"
	"github.com/jsamuelsen/tracecontext-service/internal/mocks"
	"github.com/jsamuelsen/tracecontext-service/internal/platform/logging"
	"github.com/jsamuelsen/tracecontext-service/internal/platform/tracecontext"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func alice(t *testing.T) *domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	return &domain.User{ID: 1, Username: "alice", Email: "alice@example.com", PasswordHash: hash}
}

func newService(repo *mocks.MockUserRepository, logger *slog.Logger) *UserService {
	return NewUserService(UserServiceConfig{
		Users:       repo,
		Logger:      logger,
		TokenSuffix: func() string { return "0123abcd" },
	})
}

func TestNewUserService_PanicsWithoutRepository(t *testing.T) {
	assert.Panics(t, func() {
		NewUserService(UserServiceConfig{Logger: discardLogger()})
	})
}

func TestNewUserService_DefaultsLoggerAndSuffix(t *testing.T) {
	repo := mocks.NewMockUserRepository(t)
	user := alice(t)
	repo.EXPECT().FindByUsername(mock.Anything, "alice").Return(user, nil)

	svc := NewUserService(UserServiceConfig{Users: repo})

	session, err := svc.Authenticate(context.Background(), "alice", "password123")
	require.NoError(t, err)
	assert.Regexp(t, `^TOKEN-1-[0-9a-f]{8}$`, session.Token)
}

func TestUserService_Authenticate(t *testing.T) {
	lookupErr := domain.NewUnavailableError("redis", errors.New("connection refused"))

	tests := []struct {
		name        string
		username    string
		password    string
		setupMock   func(*testing.T, *mocks.MockUserRepository)
		wantSession *domain.Session
		errCheck    func(error) bool
	}{
		{
			name:     "valid credentials",
			username: "alice",
			password: "password123",
			setupMock: func(t *testing.T, m *mocks.MockUserRepository) {
				m.EXPECT().FindByUsername(mock.Anything, "alice").Return(alice(t), nil)
			},
			wantSession: &domain.Session{UserID: 1, Token: "TOKEN-1-0123abcd"},
		},
		{
			name:     "wrong password",
			username: "alice",
			password: "wrong",
			setupMock: func(t *testing.T, m *mocks.MockUserRepository) {
				m.EXPECT().FindByUsername(mock.Anything, "alice").Return(alice(t), nil)
			},
			errCheck: domain.IsUnauthenticated,
		},
		{
			name:     "unknown user",
			username: "mallory",
			password: "password123",
			setupMock: func(_ *testing.T, m *mocks.MockUserRepository) {
				m.EXPECT().FindByUsername(mock.Anything, "mallory").
					Return(nil, domain.NewNotFoundError("user", "mallory"))
			},
			errCheck: domain.IsUnauthenticated,
		},
		{
			name:     "repository failure propagates",
			username: "alice",
			password: "password123",
			setupMock: func(_ *testing.T, m *mocks.MockUserRepository) {
				m.EXPECT().FindByUsername(mock.Anything, "alice").Return(nil, lookupErr)
			},
			errCheck: func(err error) bool { return errors.Is(err, lookupErr) && domain.IsUnavailable(err) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := mocks.NewMockUserRepository(t)
			tt.setupMock(t, repo)

			session, err := newService(repo, discardLogger()).Authenticate(context.Background(), tt.username, tt.password)

			if tt.errCheck != nil {
				require.Error(t, err)
				assert.True(t, tt.errCheck(err), "unexpected error: %v", err)
				assert.Nil(t, session)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSession, session)
		})
	}
}

func TestUserService_GetUserByID(t *testing.T) {
	tests := []struct {
		name      string
		id        int64
		setupMock func(*testing.T, *mocks.MockUserRepository)
		wantName  string
		errCheck  func(error) bool
	}{
		{
			name: "found",
			id:   1,
			setupMock: func(t *testing.T, m *mocks.MockUserRepository) {
				m.EXPECT().FindByID(mock.Anything, int64(1)).Return(alice(t), nil)
			},
			wantName: "alice",
		},
		{
			name: "not found",
			id:   99,
			setupMock: func(_ *testing.T, m *mocks.MockUserRepository) {
				m.EXPECT().FindByID(mock.Anything, int64(99)).Return(nil, domain.NewNotFoundError("user", "99"))
			},
			errCheck: domain.IsNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := mocks.NewMockUserRepository(t)
			tt.setupMock(t, repo)

			user, err := newService(repo, discardLogger()).GetUserByID(context.Background(), tt.id)

			if tt.errCheck != nil {
				require.Error(t, err)
				assert.True(t, tt.errCheck(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, user.Username)
		})
	}
}

func TestUserService_LogsCarryRequestTraceID(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(&logging.Config{
		Format:     "json",
		Extractors: []logging.ContextExtractor{tracecontext.LogExtractor},
	}, &buf)

	repo := mocks.NewMockUserRepository(t)
	var repoSaw string
	repo.EXPECT().FindByUsername(mock.Anything, "alice").
		Run(func(ctx context.Context, _ string) { repoSaw = tracecontext.TraceIDFromContext(ctx) }).
		Return(alice(t), nil)

	boundary := tracecontext.NewBoundary(tracecontext.WithLogger(discardLogger()))
	ctx, span := boundary.Open(context.Background(), tracecontext.NewStore(), tracecontext.Inbound{TraceID: "abc123"})
	defer span.End(ctx, 200, nil)

	_, err := newService(repo, logger).Authenticate(ctx, "alice", "password123")
	require.NoError(t, err)

	assert.Equal(t, "abc123", repoSaw)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines)
	for _, line := range lines {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		assert.Equal(t, "abc123", entry["traceId"], "line %q", line)
		assert.Equal(t, "app.UserService", entry["component"])
	}
}

func TestUserService_DoesNotLogPasswords(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(&logging.Config{Format: "json", Level: "debug"}, &buf)

	repo := mocks.NewMockUserRepository(t)
	repo.EXPECT().FindByUsername(mock.Anything, "alice").Return(alice(t), nil)

	session, err := newService(repo, logger).Authenticate(context.Background(), "alice", "password123")
	require.NoError(t, err)

	assert.NotContains(t, buf.String(), "password123")
	assert.NotContains(t, buf.String(), session.Token)
}
