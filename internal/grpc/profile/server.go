package profile

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/session"
	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/lib/errs"
	grpc_profile "github.com/Tonic56/proto-crypto-asset-tracker/proto/gen/go/profile"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Sessions resolves the live session of a signed-in identity.
type Sessions interface {
	Get(ctx context.Context, identity string) (*session.Session, error)
}

type server struct {
	grpc_profile.UnimplementedProfileServer
	sessions Sessions
	log      *slog.Logger
}

func NewServer(sessions Sessions, log *slog.Logger) *server {
	return &server{
		sessions: sessions,
		log:      log,
	}
}

// GetUserProfile returns the holdings of a signed-in user. Coin mutations go
// through the trading API, so the other Profile RPCs stay unimplemented.
func (s *server) GetUserProfile(ctx context.Context, req *grpc_profile.GetUserProfileRequest) (*grpc_profile.GetUserProfileResponse, error) {
	userID, err := uuid.Parse(req.GetUserId())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid user ID")
	}

	sess, err := s.sessions.Get(ctx, userID.String())
	if err != nil {
		if errors.Is(err, errs.ErrNoSession) {
			return nil, status.Error(codes.NotFound, "user has no active session")
		}
		s.log.Error("failed to resolve session", "userID", userID, slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to get user profile")
	}

	state, err := sess.State()
	if err != nil {
		return nil, status.Error(codes.NotFound, "user has no active session")
	}

	coins := make([]*grpc_profile.Coin, 0, len(state.Assets))
	for _, h := range state.Assets {
		coins = append(coins, &grpc_profile.Coin{
			Symbol:   h.Symbol,
			Quantity: h.Amount.String(),
		})
	}

	return &grpc_profile.GetUserProfileResponse{
		UserId: userID.String(),
		Name:   state.Name,
		Coins:  coins,
	}, nil
}
