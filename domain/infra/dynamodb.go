package infra

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/7FIl/CS-Bot/domain/model"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDB is the alternate remote backend. Tickets are keyed by order_id;
// a secondary index over a constant partition key orders them by ticket
// number so the allocator can read only the tail.
type DynamoDB struct {
	db           *dynamodb.Client
	ticketsTable string
	faqTable     string
}

// Constant partition key for the recency index. DynamoDB has no global
// ordering without one.
const ticketPartition = "TICKET"

const recentIndexName = "RecentIndex"

func NewDynamoDB(ctx context.Context) (*DynamoDB, error) {
	prefix := os.Getenv("DYNAMO_TABLE_NAME_PREFIX")
	if prefix == "" {
		prefix = "cs_bot"
	}

	var db *dynamodb.Client
	if os.Getenv("DYNAMO_LOCAL") != "" {
		cfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion("dummy"),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("dummy", "dummy", "dummy")),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %v", err)
		}
		db = dynamodb.NewFromConfig(cfg,
			func(o *dynamodb.Options) {
				o.BaseEndpoint = aws.String("http://localhost:8000")
			},
		)
	} else {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %v", err)
		}
		db = dynamodb.NewFromConfig(cfg)
	}

	d := &DynamoDB{
		db:           db,
		ticketsTable: prefix + "_tickets",
		faqTable:     prefix + "_faq",
	}
	if os.Getenv("DYNAMO_LOCAL") != "" {
		if err := d.EnsureTables(ctx); err != nil {
			return nil, err
		}
	}
	return d, nil
}

const (
	waitInterval = 2 * time.Second
	maxRetries   = 30
)

func (d *DynamoDB) EnsureTables(ctx context.Context) error {
	for _, tableName := range []string{d.ticketsTable, d.faqTable} {
		if err := d.ensureSingleTable(ctx, tableName); err != nil {
			return fmt.Errorf("failed to ensure table %s: %v", tableName, err)
		}
	}
	return nil
}

func (d *DynamoDB) ensureSingleTable(ctx context.Context, tableName string) error {
	_, err := d.db.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	})
	if err == nil {
		return nil
	}

	if err := d.createTable(ctx, tableName); err != nil {
		return err
	}

	for i := 0; i < maxRetries; i++ {
		out, err := d.db.DescribeTable(ctx, &dynamodb.DescribeTableInput{
			TableName: aws.String(tableName),
		})
		if err != nil {
			return fmt.Errorf("failed to describe table %s: %v", tableName, err)
		}
		if out.Table.TableStatus == types.TableStatusActive {
			return nil
		}
		time.Sleep(waitInterval)
	}
	return fmt.Errorf("table %s creation timed out", tableName)
}

func (d *DynamoDB) createTable(ctx context.Context, tableName string) error {
	var createTableInput *dynamodb.CreateTableInput

	switch tableName {
	case d.ticketsTable:
		createTableInput = &dynamodb.CreateTableInput{
			TableName: aws.String(tableName),
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String("order_id"), AttributeType: types.ScalarAttributeTypeS},
				{AttributeName: aws.String("partition"), AttributeType: types.ScalarAttributeTypeS},
				{AttributeName: aws.String("ticket_number"), AttributeType: types.ScalarAttributeTypeN},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("order_id"), KeyType: types.KeyTypeHash},
			},
			GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
				{
					IndexName: aws.String(recentIndexName),
					KeySchema: []types.KeySchemaElement{
						{AttributeName: aws.String("partition"), KeyType: types.KeyTypeHash},
						{AttributeName: aws.String("ticket_number"), KeyType: types.KeyTypeRange},
					},
					Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
					ProvisionedThroughput: &types.ProvisionedThroughput{
						ReadCapacityUnits:  aws.Int64(5),
						WriteCapacityUnits: aws.Int64(5),
					},
				},
			},
			ProvisionedThroughput: &types.ProvisionedThroughput{
				ReadCapacityUnits:  aws.Int64(5),
				WriteCapacityUnits: aws.Int64(5),
			},
		}
	case d.faqTable:
		createTableInput = &dynamodb.CreateTableInput{
			TableName: aws.String(tableName),
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String("trigger_id"), AttributeType: types.ScalarAttributeTypeS},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("trigger_id"), KeyType: types.KeyTypeHash},
			},
			ProvisionedThroughput: &types.ProvisionedThroughput{
				ReadCapacityUnits:  aws.Int64(5),
				WriteCapacityUnits: aws.Int64(5),
			},
		}
	default:
		return fmt.Errorf("unknown table name: %s", tableName)
	}

	if _, err := d.db.CreateTable(ctx, createTableInput); err != nil {
		return fmt.Errorf("failed to create table %s: %v", tableName, err)
	}
	return nil
}

func (d *DynamoDB) SaveTicket(ctx context.Context, t *model.Ticket) error {
	input := &dynamodb.PutItemInput{
		TableName: aws.String(d.ticketsTable),
		Item: map[string]types.AttributeValue{
			"partition":      &types.AttributeValueMemberS{Value: ticketPartition},
			"order_id":       &types.AttributeValueMemberS{Value: t.OrderID},
			"ticket_number":  &types.AttributeValueMemberN{Value: strconv.FormatInt(t.TicketNumber, 10)},
			"timestamp":      &types.AttributeValueMemberS{Value: t.Timestamp},
			"requester_tag":  &types.AttributeValueMemberS{Value: t.RequesterTag},
			"requester_name": &types.AttributeValueMemberS{Value: t.RequesterName},
			"issue_type":     &types.AttributeValueMemberS{Value: t.IssueType},
			"status":         &types.AttributeValueMemberS{Value: string(t.Status)},
			"thread_id":      &types.AttributeValueMemberS{Value: t.ThreadID},
			"created_at":     &types.AttributeValueMemberS{Value: timeNow().Format(time.RFC3339)},
		},
	}
	if _, err := d.db.PutItem(ctx, input); err != nil {
		return storeErr("append ticket", err)
	}
	return nil
}

func (d *DynamoDB) GetTicketByOrderID(ctx context.Context, orderID string) (*model.Ticket, error) {
	input := &dynamodb.GetItemInput{
		TableName: aws.String(d.ticketsTable),
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
	}
	result, err := d.db.GetItem(ctx, input)
	if err != nil {
		return nil, storeErr("get ticket", err)
	}
	if result.Item == nil {
		return nil, nil
	}
	return ticketFromItem(result.Item), nil
}

func (d *DynamoDB) UpdateTicketStatus(ctx context.Context, orderID string, status model.Status) (bool, error) {
	input := &dynamodb.UpdateItemInput{
		TableName: aws.String(d.ticketsTable),
		Key: map[string]types.AttributeValue{
			"order_id": &types.AttributeValueMemberS{Value: orderID},
		},
		UpdateExpression:    aws.String("SET #s = :s"),
		ConditionExpression: aws.String("attribute_exists(order_id)"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":s": &types.AttributeValueMemberS{Value: string(status)},
		},
	}
	if _, err := d.db.UpdateItem(ctx, input); err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return false, nil
		}
		return false, storeErr("update ticket status", err)
	}
	return true, nil
}

func (d *DynamoDB) ListTickets(ctx context.Context, limit int) ([]model.Ticket, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(d.ticketsTable),
		IndexName:              aws.String(recentIndexName),
		KeyConditionExpression: aws.String("#p = :p"),
		ExpressionAttributeNames: map[string]string{
			"#p": "partition",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":p": &types.AttributeValueMemberS{Value: ticketPartition},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	}
	result, err := d.db.Query(ctx, input)
	if err != nil {
		return nil, storeErr("list tickets", err)
	}
	tickets := make([]model.Ticket, 0, len(result.Items))
	for _, item := range result.Items {
		if t := ticketFromItem(item); t != nil {
			tickets = append(tickets, *t)
		}
	}
	sort.Slice(tickets, func(i, j int) bool {
		return tickets[i].TicketNumber < tickets[j].TicketNumber
	})
	return tickets, nil
}

func (d *DynamoDB) RecentTicketNumbers(ctx context.Context, window int) ([]int64, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(d.ticketsTable),
		IndexName:              aws.String(recentIndexName),
		KeyConditionExpression: aws.String("#p = :p"),
		ExpressionAttributeNames: map[string]string{
			"#p": "partition",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":p": &types.AttributeValueMemberS{Value: ticketPartition},
		},
		ProjectionExpression: aws.String("ticket_number"),
		ScanIndexForward:     aws.Bool(false),
		Limit:                aws.Int32(int32(window)),
	}
	result, err := d.db.Query(ctx, input)
	if err != nil {
		return nil, storeErr("recent ticket numbers", err)
	}
	numbers := make([]int64, 0, len(result.Items))
	for _, item := range result.Items {
		numbers = append(numbers, getNumberValue(item, "ticket_number"))
	}
	return numbers, nil
}

func (d *DynamoDB) LoadFAQ(ctx context.Context) ([]model.FAQEntry, error) {
	result, err := d.db.Scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(d.faqTable),
	})
	if err != nil {
		return nil, storeErr("load faq", err)
	}
	entries := make([]model.FAQEntry, 0, len(result.Items))
	for _, item := range result.Items {
		e := model.FAQEntry{
			TriggerID:    getStringValue(item, "trigger_id"),
			ButtonLabel:  getStringValue(item, "button_label"),
			ResponseText: getStringValue(item, "response_text"),
		}
		if e.TriggerID == "" || e.ButtonLabel == "" {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (d *DynamoDB) AppendFAQ(ctx context.Context, e *model.FAQEntry) error {
	input := &dynamodb.PutItemInput{
		TableName: aws.String(d.faqTable),
		Item: map[string]types.AttributeValue{
			"trigger_id":    &types.AttributeValueMemberS{Value: e.TriggerID},
			"button_label":  &types.AttributeValueMemberS{Value: e.ButtonLabel},
			"response_text": &types.AttributeValueMemberS{Value: e.ResponseText},
		},
	}
	if _, err := d.db.PutItem(ctx, input); err != nil {
		return storeErr("append faq", err)
	}
	return nil
}

func (d *DynamoDB) DeleteFAQ(ctx context.Context, triggerID string) (bool, error) {
	result, err := d.db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.faqTable),
		Key: map[string]types.AttributeValue{
			"trigger_id": &types.AttributeValueMemberS{Value: triggerID},
		},
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return false, storeErr("delete faq", err)
	}
	return result.Attributes != nil, nil
}

func ticketFromItem(item map[string]types.AttributeValue) *model.Ticket {
	orderID := getStringValue(item, "order_id")
	if orderID == "" {
		return nil
	}
	return &model.Ticket{
		Timestamp:     getStringValue(item, "timestamp"),
		TicketNumber:  getNumberValue(item, "ticket_number"),
		RequesterTag:  getStringValue(item, "requester_tag"),
		RequesterName: getStringValue(item, "requester_name"),
		OrderID:       orderID,
		IssueType:     getStringValue(item, "issue_type"),
		Status:        model.NormalizeStatus(getStringValue(item, "status")),
		ThreadID:      getStringValue(item, "thread_id"),
	}
}

func getStringValue(item map[string]types.AttributeValue, key string) string {
	if v, ok := item[key].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func getNumberValue(item map[string]types.AttributeValue, key string) int64 {
	if v, ok := item[key].(*types.AttributeValueMemberN); ok {
		if n, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
