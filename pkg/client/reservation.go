package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"reservo/pkg/model"
	"strconv"
	"time"
)

type Metadata struct {
	TotalCount int64
	Limit      int
	Offset     int64
}

type ReservationClient struct {
	httpClient *HttpClient
}

func NewReservationClient(httpClient *HttpClient) *ReservationClient {
	return &ReservationClient{httpClient: httpClient}
}

func (c *ReservationClient) Book(ctx context.Context, req model.ReservationRequest) (*Response, error) {
	return c.httpClient.POST(ctx, "/api/v1/reservations", req)
}

func (c *ReservationClient) GetByID(ctx context.Context, id string) (*Response, error) {
	return c.httpClient.GET(ctx, "/api/v1/reservations/id/"+url.PathEscape(id))
}

func (c *ReservationClient) Cancel(ctx context.Context, id string) (*Response, error) {
	return c.httpClient.DELETE(ctx, "/api/v1/reservations/id/"+url.PathEscape(id))
}

func (c *ReservationClient) Search(ctx context.Context, roomID string, start, end *time.Time, limit int, offset int64) (*Response, error) {
	q := url.Values{}
	q.Set("room_id", roomID)
	if start != nil {
		q.Set("start_time", start.Format(time.RFC3339))
	}
	if end != nil {
		q.Set("end_time", end.Format(time.RFC3339))
	}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.FormatInt(offset, 10))

	return c.httpClient.GET(ctx, "/api/v1/reservations/search?"+q.Encode())
}

func (c *ReservationClient) ProposeChange(ctx context.Context, reservationID string, slot model.Slot) (*Response, error) {
	return c.httpClient.POST(ctx, "/api/v1/reservations/id/"+url.PathEscape(reservationID)+"/proposals", slot)
}

func (c *ReservationClient) ListProposals(ctx context.Context, reservationID string) (*Response, error) {
	return c.httpClient.GET(ctx, "/api/v1/reservations/id/"+url.PathEscape(reservationID)+"/proposals")
}

func (c *ReservationClient) GetProposal(ctx context.Context, id string) (*Response, error) {
	return c.httpClient.GET(ctx, "/api/v1/proposals/id/"+url.PathEscape(id))
}

func (c *ReservationClient) Respond(ctx context.Context, proposalID string, approve bool) (*Response, error) {
	return c.httpClient.POST(ctx, "/api/v1/proposals/id/"+url.PathEscape(proposalID)+"/response", model.ProposalResponse{Approve: &approve})
}

func (c *ReservationClient) DecodeReservation(resp *Response) (*model.Reservation, error) {
	var reservation model.Reservation
	if err := decodeData(resp, &reservation); err != nil {
		return nil, err
	}
	return &reservation, nil
}

func (c *ReservationClient) DecodeReservations(resp *Response) ([]*model.Reservation, *Metadata, error) {
	var wrapper struct {
		Data       json.RawMessage `json:"data"`
		TotalCount int64           `json:"total_count"`
		Limit      int             `json:"limit"`
		Offset     int64           `json:"offset"`
	}

	if err := json.Unmarshal(resp.Body, &wrapper); err != nil {
		return nil, nil, fmt.Errorf("could not decode paginated resp:\n%+v\n%s", resp.ToString(), err)
	}

	var reservations []*model.Reservation
	if err := json.Unmarshal(wrapper.Data, &reservations); err != nil {
		return nil, nil, fmt.Errorf("could not decode reservation list:\n%+v\n%s", resp.ToString(), err)
	}

	return reservations, &Metadata{
		TotalCount: wrapper.TotalCount,
		Limit:      wrapper.Limit,
		Offset:     wrapper.Offset,
	}, nil
}

func (c *ReservationClient) DecodeProposal(resp *Response) (*model.ChangeProposal, error) {
	var proposal model.ChangeProposal
	if err := decodeData(resp, &proposal); err != nil {
		return nil, err
	}
	return &proposal, nil
}

func (c *ReservationClient) DecodeProposals(resp *Response) ([]*model.ChangeProposal, error) {
	var proposals []*model.ChangeProposal
	if err := decodeData(resp, &proposals); err != nil {
		return nil, err
	}
	return proposals, nil
}

func decodeData(resp *Response, target any) error {
	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(resp.Body, &wrapper); err != nil {
		return fmt.Errorf("could not decode response wrapper:\n%+v\n%s", resp.ToString(), err)
	}
	if err := json.Unmarshal(wrapper.Data, target); err != nil {
		return fmt.Errorf("could not decode response data:\n%+v\n%s", resp.ToString(), err)
	}
	return nil
}
