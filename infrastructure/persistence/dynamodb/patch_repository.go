package dynamodb

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"patchshare-backend/application/ports"
	"patchshare-backend/domain/patch"
	pkgerrors "patchshare-backend/pkg/errors"
	"patchshare-backend/pkg/utils"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

const defaultPageLimit = 20

// patchItem represents the DynamoDB item structure for a patch
type patchItem struct {
	PK          string             `dynamodbav:"PK"`
	SK          string             `dynamodbav:"SK"`
	GSI1PK      string             `dynamodbav:"GSI1PK"` // CATEGORY#<category>
	GSI1SK      string             `dynamodbav:"GSI1SK"` // CREATED#<timestamp>#<id>
	GSI2PK      string             `dynamodbav:"GSI2PK"` // PATCHID#<id>
	GSI2SK      string             `dynamodbav:"GSI2SK"` // Always "METADATA"
	EntityType  string             `dynamodbav:"EntityType"`
	PatchID     string             `dynamodbav:"PatchID"`
	Username    string             `dynamodbav:"Username"`
	Name        string             `dynamodbav:"Name"`
	Description string             `dynamodbav:"Description,omitempty"`
	Category    string             `dynamodbav:"Category"`
	Tags        []string           `dynamodbav:"Tags,stringset,omitempty"`
	SynthModel  string             `dynamodbav:"SynthModel"`
	Parameters  map[string]float64 `dynamodbav:"Parameters"`
	Public      bool               `dynamodbav:"Public"`
	RatingSum   int                `dynamodbav:"RatingSum"`
	RatingCount int                `dynamodbav:"RatingCount"`
	Downloads   int                `dynamodbav:"Downloads"`
	SearchText  string             `dynamodbav:"SearchText"`
	CreatedAt   string             `dynamodbav:"CreatedAt"`
	UpdatedAt   string             `dynamodbav:"UpdatedAt"`
	Version     int                `dynamodbav:"Version"`
}

func newPatchItem(p *patch.Patch) patchItem {
	created := p.CreatedAt.UTC().Format(time.RFC3339)
	return patchItem{
		PK:          fmt.Sprintf("USER#%s", p.Username),
		SK:          fmt.Sprintf("PATCH#%s", p.ID),
		GSI1PK:      fmt.Sprintf("CATEGORY#%s", p.Category),
		GSI1SK:      fmt.Sprintf("CREATED#%s#%s", created, p.ID),
		GSI2PK:      fmt.Sprintf("PATCHID#%s", p.ID),
		GSI2SK:      "METADATA",
		EntityType:  "PATCH",
		PatchID:     p.ID,
		Username:    p.Username,
		Name:        p.Name,
		Description: p.Description,
		Category:    string(p.Category),
		Tags:        p.Tags,
		SynthModel:  p.SynthModel,
		Parameters:  p.Parameters,
		Public:      p.Public,
		RatingSum:   p.RatingSum,
		RatingCount: p.RatingCount,
		Downloads:   p.Downloads,
		SearchText:  buildSearchText(p),
		CreatedAt:   created,
		UpdatedAt:   p.UpdatedAt.UTC().Format(time.RFC3339),
		Version:     p.Version,
	}
}

// buildSearchText precomputes the lowercased haystack substring search
// runs against, so filters never depend on case at query time.
func buildSearchText(p *patch.Patch) string {
	parts := []string{p.Name, p.Description, p.SynthModel}
	parts = append(parts, p.Tags...)
	return strings.ToLower(strings.Join(parts, " "))
}

func (i patchItem) toDomain() (*patch.Patch, error) {
	createdAt, err := utils.ParseRFC3339(i.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid CreatedAt on item %s: %w", i.PatchID, err)
	}
	updatedAt, err := utils.ParseRFC3339(i.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("invalid UpdatedAt on item %s: %w", i.PatchID, err)
	}

	return &patch.Patch{
		ID:          i.PatchID,
		Username:    i.Username,
		Name:        i.Name,
		Description: i.Description,
		Category:    patch.Category(i.Category),
		Tags:        i.Tags,
		SynthModel:  i.SynthModel,
		Parameters:  i.Parameters,
		Public:      i.Public,
		RatingSum:   i.RatingSum,
		RatingCount: i.RatingCount,
		Downloads:   i.Downloads,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
		Version:     i.Version,
	}, nil
}

// patchConfig adapts the patch entity to the generic repository
type patchConfig struct{}

func (patchConfig) ParseItem(item map[string]types.AttributeValue) (*patch.Patch, error) {
	var pi patchItem
	if err := attributevalue.UnmarshalMap(item, &pi); err != nil {
		return nil, fmt.Errorf("failed to unmarshal patch item: %w", err)
	}
	return pi.toDomain()
}

func (patchConfig) ToItem(p *patch.Patch) (map[string]types.AttributeValue, error) {
	return attributevalue.MarshalMap(newPatchItem(p))
}

func (patchConfig) BuildKey(owner, entityID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("USER#%s", owner)},
		"SK": &types.AttributeValueMemberS{Value: fmt.Sprintf("PATCH#%s", entityID)},
	}
}

func (patchConfig) EntityType() string { return "PATCH" }

func (patchConfig) Version(p *patch.Patch) int { return p.Version }

// PatchRepository implements ports.PatchRepository on the single table
type PatchRepository struct {
	*GenericRepository[*patch.Patch]
	client        *dynamodb.Client
	tableName     string
	indexName     string // GSI1 - category/created
	gsi2IndexName string // GSI2 - patch ID
	logger        *zap.Logger
}

// NewPatchRepository creates a new PatchRepository
func NewPatchRepository(client *dynamodb.Client, tableName, indexName, gsi2IndexName string, logger *zap.Logger) ports.PatchRepository {
	return &PatchRepository{
		GenericRepository: NewGenericRepository[*patch.Patch](client, tableName, patchConfig{}, logger),
		client:            client,
		tableName:         tableName,
		indexName:         indexName,
		gsi2IndexName:     gsi2IndexName,
		logger:            logger,
	}
}

// Create persists a new patch, failing when the key already exists
func (r *PatchRepository) Create(ctx context.Context, p *patch.Patch) error {
	if err := r.Save(ctx, p); err != nil {
		return err
	}
	r.logger.Info("patch created",
		zap.String("patchID", p.ID),
		zap.String("username", p.Username),
		zap.String("category", string(p.Category)),
	)
	return nil
}

// Update replaces a patch under optimistic lock on the previous version
func (r *PatchRepository) Update(ctx context.Context, p *patch.Patch) error {
	if p.Version <= 1 {
		return pkgerrors.NewValidationError("update requires a version greater than 1")
	}
	return r.Save(ctx, p)
}

// Delete removes a patch owned by username
func (r *PatchRepository) Delete(ctx context.Context, username, id string) error {
	if err := r.GenericRepository.Delete(ctx, username, id); err != nil {
		return err
	}
	r.logger.Info("patch deleted",
		zap.String("patchID", id),
		zap.String("username", username),
	)
	return nil
}

// GetByID retrieves a patch by its ID via GSI2
func (r *PatchRepository) GetByID(ctx context.Context, id string) (*patch.Patch, error) {
	keyExpr := expression.Key("GSI2PK").Equal(expression.Value(fmt.Sprintf("PATCHID#%s", id))).
		And(expression.Key("GSI2SK").Equal(expression.Value("METADATA")))

	expr, err := expression.NewBuilder().WithKeyCondition(keyExpr).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(r.gsi2IndexName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		Limit:                     aws.Int32(1),
	}

	result, err := r.client.Query(ctx, input)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("get patch", err)
	}

	if len(result.Items) == 0 {
		return nil, pkgerrors.NewNotFoundError("patch")
	}

	return patchConfig{}.ParseItem(result.Items[0])
}

// ListByUser returns one page of a user's patches
func (r *PatchRepository) ListByUser(ctx context.Context, username string, opts ports.ListOptions) (*patch.Page, error) {
	keyExpr := expression.Key("PK").Equal(expression.Value(fmt.Sprintf("USER#%s", username))).
		And(expression.Key("SK").BeginsWith("PATCH#"))

	expr, err := expression.NewBuilder().WithKeyCondition(keyExpr).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	return r.queryPage(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	}, opts)
}

// ListByCategory returns one page of a category, newest first by default
func (r *PatchRepository) ListByCategory(ctx context.Context, category patch.Category, opts ports.ListOptions) (*patch.Page, error) {
	keyExpr := expression.Key("GSI1PK").Equal(expression.Value(fmt.Sprintf("CATEGORY#%s", category)))
	filter := expression.Name("Public").Equal(expression.Value(true))

	expr, err := expression.NewBuilder().WithKeyCondition(keyExpr).WithFilter(filter).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	return r.queryPage(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String(r.indexName),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(opts.Order == "asc"),
	}, opts)
}

// queryPage runs one Query page and translates the continuation key
func (r *PatchRepository) queryPage(ctx context.Context, input *dynamodb.QueryInput, opts ports.ListOptions) (*patch.Page, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultPageLimit
	}
	input.Limit = aws.Int32(int32(limit))

	startKey, err := decodeKeyCursor(opts.Cursor)
	if err != nil {
		return nil, err
	}
	input.ExclusiveStartKey = startKey

	result, err := r.client.Query(ctx, input)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("query patches", err)
	}

	items := make([]*patch.Patch, 0, len(result.Items))
	for _, raw := range result.Items {
		p, err := patchConfig{}.ParseItem(raw)
		if err != nil {
			r.logger.Warn("skipping unparseable patch item", zap.Error(err))
			continue
		}
		items = append(items, p)
	}

	return &patch.Page{
		Items:      items,
		NextCursor: encodeKeyCursor(result.LastEvaluatedKey),
		Count:      len(items),
	}, nil
}

// Latest returns public patches ordered by creation time, newest first
func (r *PatchRepository) Latest(ctx context.Context, limit int, cursor string) (*patch.Page, error) {
	all, err := r.scanPublic(ctx, nil)
	if err != nil {
		return nil, err
	}
	sortByCreatedDesc(all)
	return pageFromSlice(all, limit, cursor)
}

// ListByTag returns public patches carrying the tag, newest first
func (r *PatchRepository) ListByTag(ctx context.Context, tag string, opts ports.ListOptions) (*patch.Page, error) {
	filter := expression.Name("Tags").Contains(strings.ToLower(strings.TrimSpace(tag)))
	all, err := r.scanPublic(ctx, &filter)
	if err != nil {
		return nil, err
	}
	sortByCreatedDesc(all)
	return pageFromSlice(all, opts.Limit, opts.Cursor)
}

// Search returns public patches whose text matches term, newest first.
// Matching is a case-insensitive substring test over name, description,
// synth model and tags.
func (r *PatchRepository) Search(ctx context.Context, term string, opts ports.ListOptions) (*patch.Page, error) {
	needle := strings.ToLower(strings.TrimSpace(term))
	if needle == "" {
		return nil, pkgerrors.NewValidationError("search term cannot be empty")
	}

	filter := expression.Name("SearchText").Contains(needle)
	all, err := r.scanPublic(ctx, &filter)
	if err != nil {
		return nil, err
	}
	sortByCreatedDesc(all)
	return pageFromSlice(all, opts.Limit, opts.Cursor)
}

// TopRated returns public patches with average rating >= minRating,
// best first. Unrated patches never qualify.
func (r *PatchRepository) TopRated(ctx context.Context, minRating float64, opts ports.ListOptions) (*patch.Page, error) {
	filter := expression.Name("RatingCount").GreaterThanEqual(expression.Value(1))
	all, err := r.scanPublic(ctx, &filter)
	if err != nil {
		return nil, err
	}

	qualified := all[:0]
	for _, p := range all {
		if p.AverageRating() >= minRating {
			qualified = append(qualified, p)
		}
	}

	sort.SliceStable(qualified, func(i, j int) bool {
		ri, rj := qualified[i].AverageRating(), qualified[j].AverageRating()
		if ri != rj {
			return ri > rj
		}
		return qualified[i].RatingCount > qualified[j].RatingCount
	})

	return pageFromSlice(qualified, opts.Limit, opts.Cursor)
}

// Stats aggregates library-wide figures over all public patches
func (r *PatchRepository) Stats(ctx context.Context) (*patch.Stats, error) {
	all, err := r.scanPublic(ctx, nil)
	if err != nil {
		return nil, err
	}

	stats := &patch.Stats{
		ByCategory: make(map[patch.Category]int),
	}
	ratingSum, ratingCount := 0, 0
	for _, p := range all {
		stats.TotalPatches++
		stats.TotalDownloads += p.Downloads
		stats.ByCategory[p.Category]++
		ratingSum += p.RatingSum
		ratingCount += p.RatingCount
	}
	if ratingCount > 0 {
		stats.AverageRating = float64(ratingSum) / float64(ratingCount)
	}

	return stats, nil
}

// CountByUser counts the user's patches, public and private alike
func (r *PatchRepository) CountByUser(ctx context.Context, username string) (int, error) {
	return r.CountByOwner(ctx, username, "PATCH#")
}

// scanPublic scans every public patch, optionally narrowed by extra,
// paginating internally until the table is exhausted. Scan-backed query
// shapes trade efficiency for flexibility; the cache layer in front of
// this repository is what keeps them off the hot path.
func (r *PatchRepository) scanPublic(ctx context.Context, extra *expression.ConditionBuilder) ([]*patch.Patch, error) {
	filter := expression.Name("EntityType").Equal(expression.Value("PATCH")).
		And(expression.Name("Public").Equal(expression.Value(true)))
	if extra != nil {
		filter = filter.And(*extra)
	}

	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	var patches []*patch.Patch
	var startKey map[string]types.AttributeValue
	for {
		input := &dynamodb.ScanInput{
			TableName:                 aws.String(r.tableName),
			FilterExpression:          expr.Filter(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         startKey,
		}

		result, err := r.client.Scan(ctx, input)
		if err != nil {
			return nil, pkgerrors.NewDatabaseError("scan patches", err)
		}

		for _, raw := range result.Items {
			p, err := patchConfig{}.ParseItem(raw)
			if err != nil {
				r.logger.Warn("skipping unparseable patch item", zap.Error(err))
				continue
			}
			patches = append(patches, p)
		}

		if result.LastEvaluatedKey == nil {
			break
		}
		startKey = result.LastEvaluatedKey
	}

	return patches, nil
}

func sortByCreatedDesc(patches []*patch.Patch) {
	sort.SliceStable(patches, func(i, j int) bool {
		return patches[i].CreatedAt.After(patches[j].CreatedAt)
	})
}

// pageFromSlice applies an offset cursor and limit to a sorted slice
func pageFromSlice(patches []*patch.Patch, limit int, cursor string) (*patch.Page, error) {
	if limit <= 0 {
		limit = defaultPageLimit
	}

	offset, err := decodeOffsetCursor(cursor)
	if err != nil {
		return nil, err
	}
	if offset > len(patches) {
		offset = len(patches)
	}

	end := offset + limit
	if end > len(patches) {
		end = len(patches)
	}

	page := &patch.Page{
		Items: patches[offset:end],
		Count: end - offset,
	}
	if end < len(patches) {
		page.NextCursor = encodeOffsetCursor(end)
	}
	return page, nil
}
