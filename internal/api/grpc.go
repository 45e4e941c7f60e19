package api

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/victornm/questiontime/internal/errors"
	"github.com/victornm/questiontime/internal/leaderboard"
	"github.com/victornm/questiontime/internal/session"
)

const ServiceName = "questiontime.v1.QuestionTimeService"

// QuestionTimeServer is the gRPC surface of the game. Requests and responses
// are google.protobuf.Struct values shaped like the HTTP JSON bodies.
type QuestionTimeServer interface {
	StartSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SubmitAnswer(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PauseSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResumeSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetState(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetLeaderboard(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*QuestionTimeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "StartSession", Handler: unaryHandler("StartSession", QuestionTimeServer.StartSession)},
		{MethodName: "SubmitAnswer", Handler: unaryHandler("SubmitAnswer", QuestionTimeServer.SubmitAnswer)},
		{MethodName: "PauseSession", Handler: unaryHandler("PauseSession", QuestionTimeServer.PauseSession)},
		{MethodName: "ResumeSession", Handler: unaryHandler("ResumeSession", QuestionTimeServer.ResumeSession)},
		{MethodName: "GetState", Handler: unaryHandler("GetState", QuestionTimeServer.GetState)},
		{MethodName: "GetLeaderboard", Handler: unaryHandler("GetLeaderboard", QuestionTimeServer.GetLeaderboard)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "questiontime/v1/questiontime.proto",
}

type unaryMethod func(QuestionTimeServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(QuestionTimeServer), ctx, in)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + ServiceName + "/" + method,
		}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(QuestionTimeServer), ctx, req.(*structpb.Struct))
		})
	}
}

func (a *API) StartSession(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	st, err := a.ss.StartSession(ctx, session.StartSessionRequest{Player: field(in, "player")})
	if err != nil {
		return nil, err
	}

	return toStruct(StartResponse{
		Message:   "Question Time Started!",
		SessionID: st.SessionID,
		State:     *st,
	})
}

func (a *API) SubmitAnswer(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	res, err := a.ss.SubmitAnswer(ctx, session.SubmitAnswerRequest{
		Player: field(in, "player"),
		Answer: field(in, "answer"),
	})
	if err != nil {
		return nil, err
	}

	return toStruct(res)
}

func (a *API) PauseSession(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := a.ss.PauseSession(ctx, session.PauseSessionRequest{Player: field(in, "player")}); err != nil {
		return nil, err
	}

	return toStruct(MessageResponse{Message: "Game Paused."})
}

func (a *API) ResumeSession(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if err := a.ss.ResumeSession(ctx, session.ResumeSessionRequest{Player: field(in, "player")}); err != nil {
		return nil, err
	}

	return toStruct(MessageResponse{Message: "Game Resumed."})
}

func (a *API) GetState(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	st, err := a.ss.GetState(ctx, session.GetStateRequest{Player: field(in, "player")})
	if err != nil {
		return nil, err
	}

	return toStruct(st)
}

func (a *API) GetLeaderboard(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	l, err := a.ls.GetLeaderboard(ctx, leaderboard.GetLeaderboardRequest{})
	if err != nil {
		return nil, err
	}

	return toStruct(struct {
		Entries any `json:"entries"`
	}{l.Entries})
}

func field(in *structpb.Struct, name string) string {
	return in.GetFields()[name].GetStringValue()
}

// toStruct converts v through its JSON form so gRPC and HTTP bodies match.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Internal(err)
	}

	s := new(structpb.Struct)
	if err := protojson.Unmarshal(b, s); err != nil {
		return nil, errors.Internal(err)
	}

	return s, nil
}

// Client calls the QuestionTimeService over an established connection.
type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) Call(ctx context.Context, method string, in map[string]any) (map[string]any, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, err
	}

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, out); err != nil {
		return nil, err
	}

	return out.AsMap(), nil
}
