package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/policetracker/internal/core/domain"
)

// buildSchema creates the GraphQL schema wired to the alert service.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	alertType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Alert",
		Fields: graphql.Fields{
			"id":           &graphql.Field{Type: graphql.String},
			"type":         &graphql.Field{Type: graphql.String},
			"subtype":      &graphql.Field{Type: graphql.String},
			"description":  &graphql.Field{Type: graphql.String},
			"city":         &graphql.Field{Type: graphql.String},
			"state":        &graphql.Field{Type: graphql.String},
			"street":       &graphql.Field{Type: graphql.String},
			"location":     &graphql.Field{Type: geoPointType},
			"reliability":  &graphql.Field{Type: graphql.Int},
			"confidence":   &graphql.Field{Type: graphql.Int},
			"thumbs_up":    &graphql.Field{Type: graphql.Int},
			"published_at": &graphql.Field{Type: graphql.DateTime},
			"distance":     &graphql.Field{Type: graphql.Float},
		},
	})

	windowArg := &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: string(domain.DefaultWindow)}

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"alerts": &graphql.Field{
				Type:        graphql.NewList(alertType),
				Description: "Alerts inside a bounding box, newest first",
				Args: graphql.FieldConfigArgument{
					"north":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"south":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"east":     &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"west":     &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"window":   windowArg,
					"category": &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
					"limit":    &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 200},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					window, err := domain.ParseTimeWindow(p.Args["window"].(string))
					if err != nil {
						return nil, err
					}
					category, err := domain.ParseCategory(p.Args["category"].(string))
					if err != nil {
						return nil, err
					}
					return deps.Alerts.FetchAlerts(p.Context, domain.AlertQuery{
						Bounds: domain.Bounds{
							MinLat: p.Args["south"].(float64),
							MinLon: p.Args["west"].(float64),
							MaxLat: p.Args["north"].(float64),
							MaxLon: p.Args["east"].(float64),
						},
						Since:    window.Cutoff(time.Now()),
						Category: category,
						Limit:    p.Args["limit"].(int),
					})
				},
			},
			"alertsNearby": &graphql.Field{
				Type:        graphql.NewList(alertType),
				Description: "Alerts near a location, closest first",
				Args: graphql.FieldConfigArgument{
					"lat":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon":    &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"radius": &graphql.ArgumentConfig{Type: graphql.Float, DefaultValue: 5000.0},
					"window": windowArg,
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 50},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					window, err := domain.ParseTimeWindow(p.Args["window"].(string))
					if err != nil {
						return nil, err
					}
					return deps.Alerts.FindNearby(p.Context,
						p.Args["lat"].(float64), p.Args["lon"].(float64), p.Args["radius"].(float64),
						window, p.Args["limit"].(int))
				},
			},
			"alert": &graphql.Field{
				Type:        alertType,
				Description: "Get an alert by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Alerts.GetByID(p.Context, p.Args["id"].(string))
				},
			},
			"alertCount": &graphql.Field{
				Type:        graphql.Int,
				Description: "Total number of stored alerts",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Alerts.CountAlerts(p.Context)
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
