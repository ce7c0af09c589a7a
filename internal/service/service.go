package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"bailacheck/internal/dto"
	"bailacheck/internal/model"
	"bailacheck/internal/rabbit"
	"bailacheck/internal/repo"
	"bailacheck/pkg/validator"
)

const searchLimit = 15

type Service interface {
	GetEvents(ctx *ginext.Context)
	GetUserCheckins(ctx *ginext.Context)
	GetCheckinSummary(ctx *ginext.Context)
	ToggleCheckin(ctx *ginext.Context)
	GetMyCheckins(ctx *ginext.Context)
	GetUpcomingCheckins(ctx *ginext.Context)

	GetProfile(ctx *ginext.Context)
	SaveProfile(ctx *ginext.Context)
	SearchProfiles(ctx *ginext.Context)

	GetFriends(ctx *ginext.Context)
	GetFriendRequests(ctx *ginext.Context)
	GetCheckinsByUsers(ctx *ginext.Context)
	GetRelations(ctx *ginext.Context)
	RemoveFriend(ctx *ginext.Context)
	SendFriendRequest(ctx *ginext.Context)
	AcceptFriendRequest(ctx *ginext.Context)
	DeclineFriendRequest(ctx *ginext.Context)
}

type service struct {
	repo repo.Repository
	log  *zerolog.Logger
	rbt  *rabbit.Client
}

func NewService(repo repo.Repository, logger *zerolog.Logger, rbt *rabbit.Client) Service {
	return &service{
		repo: repo,
		log:  logger,
		rbt:  rbt,
	}
}

// userID comes from the auth middleware; empty means anonymous.
func userID(ctx *ginext.Context) string {
	return ctx.GetString("user_id")
}

func requireUser(ctx *ginext.Context) (string, bool) {
	uid := userID(ctx)
	if uid == "" {
		dto.UnauthorizedError(ctx)
		return "", false
	}
	return uid, true
}

func (s *service) GetEvents(ctx *ginext.Context) {
	events, err := s.repo.ListActiveEvents(ctx.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list events")
		dto.InternalServerError(ctx)
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	dto.SuccessResponse(ctx, events)
}

// GetUserCheckins returns the authenticated user's raw checkin rows. The
// anonymous case is an empty list, not an error, so the client's parallel
// event fetch works signed out.
func (s *service) GetUserCheckins(ctx *ginext.Context) {
	uid := userID(ctx)
	if uid == "" {
		dto.SuccessResponse(ctx, []model.EventCheckin{})
		return
	}

	checkins, err := s.repo.ListUserCheckins(ctx.Request.Context(), uid)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list user checkins")
		dto.InternalServerError(ctx)
		return
	}
	if checkins == nil {
		checkins = []model.EventCheckin{}
	}
	dto.SuccessResponse(ctx, checkins)
}

func (s *service) GetCheckinSummary(ctx *ginext.Context) {
	summary, err := s.repo.ListCheckinSummary(ctx.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list checkin summary")
		dto.InternalServerError(ctx)
		return
	}
	if summary == nil {
		summary = []model.CheckinSummary{}
	}
	dto.SuccessResponse(ctx, summary)
}

func (s *service) ToggleCheckin(ctx *ginext.Context) {
	uid, ok := requireUser(ctx)
	if !ok {
		return
	}
	eventID := ctx.Param("id")

	var req dto.ToggleCheckinRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	result, err := s.repo.ToggleCheckinTx(ctx.Request.Context(), uid, eventID, req.Status)
	if err != nil {
		if errors.Is(err, repo.ErrEventNotFound) {
			dto.NotFoundError(ctx, dto.EventNotFound, "Event not found")
			return
		}
		s.log.Error().Err(err).Msg("failed to toggle checkin")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().
		Str("user_id", uid).
		Str("event_id", eventID).
		Str("action", result.Action).
		Msg("checkin toggled")

	if result.Action == "created" {
		s.notifyFriendsOfCheckin(ctx, uid, eventID)
	}

	dto.SuccessResponse(ctx, result)
}

func (s *service) notifyFriendsOfCheckin(ctx *ginext.Context, uid, eventID string) {
	friendIDs, err := s.repo.ListFriendIDs(ctx.Request.Context(), uid)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to resolve friends for checkin notification")
		return
	}
	for _, fid := range friendIDs {
		s.publishNotification(&dto.NotificationMessage{
			UserID: fid,
			Kind:   dto.NotifyEventCheckin,
			Body:   "A friend is going to a dance event!",
			Data:   map[string]any{"event_id": eventID},
		})
	}
}

func (s *service) publishNotification(msg *dto.NotificationMessage) {
	msg.SentAt = time.Now()
	payload, err := json.Marshal(msg)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to marshal notification message")
		return
	}
	if err := s.rbt.Publish(payload); err != nil {
		s.log.Error().Err(err).Msg("failed to publish notification to RabbitMQ")
	}
}

func (s *service) GetMyCheckins(ctx *ginext.Context) {
	uid, ok := requireUser(ctx)
	if !ok {
		return
	}

	checkins, err := s.repo.ListUserCheckinsWithEvents(ctx.Request.Context(), uid)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list checkins with events")
		dto.InternalServerError(ctx)
		return
	}
	if checkins == nil {
		checkins = []model.EventCheckin{}
	}
	dto.SuccessResponse(ctx, checkins)
}

func (s *service) GetUpcomingCheckins(ctx *ginext.Context) {
	uid, ok := requireUser(ctx)
	if !ok {
		return
	}

	checkins, err := s.repo.ListUpcomingUserCheckins(ctx.Request.Context(), uid, time.Now())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list upcoming checkins")
		dto.InternalServerError(ctx)
		return
	}
	if checkins == nil {
		checkins = []model.EventCheckin{}
	}
	dto.SuccessResponse(ctx, checkins)
}

func (s *service) GetProfile(ctx *ginext.Context) {
	uid, ok := requireUser(ctx)
	if !ok {
		return
	}

	profile, err := s.repo.GetProfile(ctx.Request.Context(), uid)
	if err != nil {
		dto.NotFoundError(ctx, dto.ProfileNotFound, "Profile not found")
		return
	}
	dto.SuccessResponse(ctx, profile)
}

func (s *service) SaveProfile(ctx *ginext.Context) {
	uid, ok := requireUser(ctx)
	if !ok {
		return
	}

	var req dto.SaveProfileRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	profile := &model.UserProfile{
		ID:               uid,
		Email:            req.Email,
		FullName:         req.FullName,
		Bio:              req.Bio,
		Location:         req.Location,
		InstagramHandle:  req.InstagramHandle,
		DancePreferences: req.DancePreferences,
		AvatarURL:        req.AvatarURL,
	}
	if profile.DancePreferences == nil {
		profile.DancePreferences = []string{}
	}

	if err := s.repo.UpsertProfile(ctx.Request.Context(), profile); err != nil {
		s.log.Error().Err(err).Msg("failed to save profile")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().Str("user_id", uid).Msg("profile saved")
	dto.SuccessResponse(ctx, profile)
}

func (s *service) SearchProfiles(ctx *ginext.Context) {
	uid, ok := requireUser(ctx)
	if !ok {
		return
	}

	query := strings.TrimSpace(ctx.Query("q"))
	if len(query) < 2 {
		dto.SuccessResponse(ctx, []model.UserProfile{})
		return
	}

	profiles, err := s.repo.SearchProfiles(ctx.Request.Context(), uid, query, searchLimit)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to search profiles")
		dto.InternalServerError(ctx)
		return
	}
	if profiles == nil {
		profiles = []model.UserProfile{}
	}
	dto.SuccessResponse(ctx, profiles)
}

func (s *service) GetFriends(ctx *ginext.Context) {
	uid, ok := requireUser(ctx)
	if !ok {
		return
	}

	friendships, err := s.repo.ListFriendships(ctx.Request.Context(), uid)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list friendships")
		dto.InternalServerError(ctx)
		return
	}
	if friendships == nil {
		friendships = []model.Friendship{}
	}
	dto.SuccessResponse(ctx, friendships)
}

func (s *service) GetFriendRequests(ctx *ginext.Context) {
	uid, ok := requireUser(ctx)
	if !ok {
		return
	}

	requests, err := s.repo.ListPendingRequests(ctx.Request.Context(), uid)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list friend requests")
		dto.InternalServerError(ctx)
		return
	}
	if requests == nil {
		requests = []model.FriendRequest{}
	}
	dto.SuccessResponse(ctx, requests)
}

// GetCheckinsByUsers returns (checkin, event, user) triples for the given
// user ids restricted to future active events. The friends layer resolves
// friend ids first and then calls this.
func (s *service) GetCheckinsByUsers(ctx *ginext.Context) {
	if _, ok := requireUser(ctx); !ok {
		return
	}

	ids := splitIDs(ctx.Query("ids"))
	if len(ids) == 0 {
		dto.SuccessResponse(ctx, []model.EventCheckin{})
		return
	}

	checkins, err := s.repo.ListFriendCheckins(ctx.Request.Context(), ids, time.Now())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list checkins by users")
		dto.InternalServerError(ctx)
		return
	}
	if checkins == nil {
		checkins = []model.EventCheckin{}
	}
	dto.SuccessResponse(ctx, checkins)
}

type relationsResponse struct {
	Friendships    []model.Friendship    `json:"friendships"`
	FriendRequests []model.FriendRequest `json:"friend_requests"`
}

func (s *service) GetRelations(ctx *ginext.Context) {
	uid, ok := requireUser(ctx)
	if !ok {
		return
	}

	ids := splitIDs(ctx.Query("ids"))
	friendships, requests, err := s.repo.ListRelations(ctx.Request.Context(), uid, ids)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list relations")
		dto.InternalServerError(ctx)
		return
	}
	if friendships == nil {
		friendships = []model.Friendship{}
	}
	if requests == nil {
		requests = []model.FriendRequest{}
	}
	dto.SuccessResponse(ctx, relationsResponse{Friendships: friendships, FriendRequests: requests})
}

func (s *service) RemoveFriend(ctx *ginext.Context) {
	uid, ok := requireUser(ctx)
	if !ok {
		return
	}
	friendID := ctx.Param("id")

	if err := s.repo.RemoveFriendships(ctx.Request.Context(), uid, friendID); err != nil {
		s.log.Error().Err(err).Msg("failed to remove friend")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().Str("user_id", uid).Str("friend_id", friendID).Msg("friendship removed")
	dto.SuccessResponse(ctx, nil)
}

func (s *service) SendFriendRequest(ctx *ginext.Context) {
	uid, ok := requireUser(ctx)
	if !ok {
		return
	}

	var req dto.SendFriendRequestRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	id, err := s.repo.CreateFriendRequest(ctx.Request.Context(), uid, req.ReceiverID)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicateRequest) {
			dto.ConflictError(ctx, dto.RequestDuplicate, "A pending request for this user already exists")
			return
		}
		s.log.Error().Err(err).Msg("failed to create friend request")
		dto.InternalServerError(ctx)
		return
	}

	s.publishNotification(&dto.NotificationMessage{
		UserID: req.ReceiverID,
		Kind:   dto.NotifyFriendRequest,
		Body:   "You have a new friend request",
		Data:   map[string]any{"request_id": id},
	})

	dto.SuccessCreatedResponse(ctx, map[string]string{"id": id})
}

func (s *service) AcceptFriendRequest(ctx *ginext.Context) {
	uid, ok := requireUser(ctx)
	if !ok {
		return
	}

	var req dto.FriendRequestIDRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	requesterID, err := s.repo.AcceptFriendRequestTx(ctx.Request.Context(), req.RequestID, uid)
	if err != nil {
		if errors.Is(err, repo.ErrRequestNotFound) {
			dto.NotFoundError(ctx, dto.RequestNotFound, "Friend request not found")
			return
		}
		s.log.Error().Err(err).Msg("failed to accept friend request")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().
		Str("request_id", req.RequestID).
		Str("receiver_id", uid).
		Msg("friend request accepted")

	s.publishNotification(&dto.NotificationMessage{
		UserID: requesterID,
		Kind:   dto.NotifyRequestAccepted,
		Body:   "Your friend request was accepted",
		Data:   map[string]any{"friend_id": uid},
	})

	dto.SuccessResponse(ctx, map[string]string{"requester_id": requesterID})
}

func (s *service) DeclineFriendRequest(ctx *ginext.Context) {
	uid, ok := requireUser(ctx)
	if !ok {
		return
	}

	var req dto.FriendRequestIDRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	if err := s.repo.DeclineFriendRequest(ctx.Request.Context(), req.RequestID, uid); err != nil {
		if errors.Is(err, repo.ErrRequestNotFound) {
			dto.NotFoundError(ctx, dto.RequestNotFound, "Friend request not found")
			return
		}
		s.log.Error().Err(err).Msg("failed to decline friend request")
		dto.InternalServerError(ctx)
		return
	}

	dto.SuccessResponse(ctx, nil)
}

func splitIDs(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	ids := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}
