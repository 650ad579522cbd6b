package client

import (
	"context"
	"net/http"
)

// News lists news articles.
func (c *Client) News(ctx context.Context) ([]News, error) {
	return getList[News](ctx, c, "news")
}

// NewsItem fetches one article.
func (c *Client) NewsItem(ctx context.Context, id string) (*News, error) {
	return getOne[News](ctx, c, "news/"+escape(id))
}

// CreateNews publishes an article.
func (c *Client) CreateNews(ctx context.Context, n News) (*News, error) {
	return send[News](ctx, c, http.MethodPost, "news", n)
}

// UpdateNews replaces the fields of an article.
func (c *Client) UpdateNews(ctx context.Context, id string, n News) (*News, error) {
	return send[News](ctx, c, http.MethodPut, "news/"+escape(id), n)
}

// DeleteNews removes an article.
func (c *Client) DeleteNews(ctx context.Context, id string) error {
	return c.remove(ctx, "news/"+escape(id))
}

// Ads lists promotional banners.
func (c *Client) Ads(ctx context.Context) ([]Ad, error) {
	return getList[Ad](ctx, c, "ads")
}

// Ad fetches one banner.
func (c *Client) Ad(ctx context.Context, id string) (*Ad, error) {
	return getOne[Ad](ctx, c, "ads/"+escape(id))
}

// CreateAd adds a banner.
func (c *Client) CreateAd(ctx context.Context, ad Ad) (*Ad, error) {
	return send[Ad](ctx, c, http.MethodPost, "ads", ad)
}

// UpdateAd replaces the fields of a banner.
func (c *Client) UpdateAd(ctx context.Context, id string, ad Ad) (*Ad, error) {
	return send[Ad](ctx, c, http.MethodPut, "ads/"+escape(id), ad)
}

// DeleteAd removes a banner.
func (c *Client) DeleteAd(ctx context.Context, id string) error {
	return c.remove(ctx, "ads/"+escape(id))
}

// Services lists bookable services.
func (c *Client) Services(ctx context.Context) ([]Service, error) {
	return getList[Service](ctx, c, "services")
}

// CreateService adds a service.
func (c *Client) CreateService(ctx context.Context, s Service) (*Service, error) {
	return send[Service](ctx, c, http.MethodPost, "services", s)
}

// UpdateService replaces the fields of a service.
func (c *Client) UpdateService(ctx context.Context, id string, s Service) (*Service, error) {
	return send[Service](ctx, c, http.MethodPut, "services/"+escape(id), s)
}

// DeleteService removes a service.
func (c *Client) DeleteService(ctx context.Context, id string) error {
	return c.remove(ctx, "services/"+escape(id))
}

// CreateServiceRequest books a service.
func (c *Client) CreateServiceRequest(ctx context.Context, r ServiceRequest) (*ServiceRequest, error) {
	return send[ServiceRequest](ctx, c, http.MethodPost, "service-requests", r)
}

// ServiceRequests lists service bookings visible to the caller.
func (c *Client) ServiceRequests(ctx context.Context) ([]ServiceRequest, error) {
	return getList[ServiceRequest](ctx, c, "service-requests")
}

// UpdateServiceRequestStatus moves a booking to a new status.
func (c *Client) UpdateServiceRequestStatus(ctx context.Context, id string, status ServiceRequestStatus) (*ServiceRequest, error) {
	return send[ServiceRequest](ctx, c, http.MethodPut, "service-requests/"+escape(id),
		map[string]ServiceRequestStatus{"status": status})
}

// DeleteServiceRequest removes a booking.
func (c *Client) DeleteServiceRequest(ctx context.Context, id string) error {
	return c.remove(ctx, "service-requests/"+escape(id))
}

// Settings lists every site setting.
func (c *Client) Settings(ctx context.Context) ([]Setting, error) {
	return getList[Setting](ctx, c, "settings")
}

// Setting fetches one site setting by key.
func (c *Client) Setting(ctx context.Context, key string) (*Setting, error) {
	return getOne[Setting](ctx, c, "settings/"+escape(key))
}

// UpdateSetting creates or replaces a site setting.
func (c *Client) UpdateSetting(ctx context.Context, key string, value any) (*Setting, error) {
	return send[Setting](ctx, c, http.MethodPut, "settings/"+escape(key), map[string]any{"value": value})
}
