package store

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"taskgrid/internal/config"
	"taskgrid/internal/models"
)

// Mongo implements Store on top of MongoDB.
type Mongo struct {
	client        *mongo.Client
	database      *mongo.Database
	users         *mongo.Collection
	projects      *mongo.Collection
	tasks         *mongo.Collection
	subtasks      *mongo.Collection
	workUploads   *mongo.Collection
	notifications *mongo.Collection
	timeline      *mongo.Collection
}

var _ Store = (*Mongo)(nil)

// NewMongo connects to MongoDB and prepares collections and indexes.
func NewMongo(cfg config.MongoDBConfig) (*Mongo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Build connection URI
	uri := cfg.URI
	if uri == "" {
		// Build URI from components if URI not provided
		if cfg.Username != "" && cfg.Password != "" {
			// Use url.UserPassword to properly encode username and password
			userInfo := url.UserPassword(cfg.Username, cfg.Password)
			uri = fmt.Sprintf("mongodb://%s@%s:%s/%s?authSource=%s",
				userInfo.String(),
				cfg.Host,
				cfg.Port,
				cfg.Database,
				url.QueryEscape(cfg.AuthSource),
			)
		} else {
			uri = fmt.Sprintf("mongodb://%s:%s/%s",
				cfg.Host,
				cfg.Port,
				cfg.Database,
			)
		}
	}

	// Log connection attempt (mask password for security)
	logURI := uri
	if cfg.Password != "" && cfg.Username != "" {
		userInfo := url.User(cfg.Username)
		logURI = fmt.Sprintf("mongodb://%s:***@%s:%s/%s?authSource=%s",
			userInfo.String(), cfg.Host, cfg.Port, cfg.Database, url.QueryEscape(cfg.AuthSource))
	}
	log.Printf("Attempting to connect to MongoDB at %s", logURI)

	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB at %s: %w", logURI, err)
	}

	// Ping to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB at %s: %w", logURI, err)
	}

	database := client.Database(cfg.Database)
	s := &Mongo{
		client:        client,
		database:      database,
		users:         database.Collection("users"),
		projects:      database.Collection("projects"),
		tasks:         database.Collection("tasks"),
		subtasks:      database.Collection("subtasks"),
		workUploads:   database.Collection("work_uploads"),
		notifications: database.Collection("notifications"),
		timeline:      database.Collection("timeline"),
	}

	s.ensureIndexes(ctx)
	return s, nil
}

func (s *Mongo) ensureIndexes(ctx context.Context) {
	create := func(col *mongo.Collection, model mongo.IndexModel) {
		if _, err := col.Indexes().CreateOne(ctx, model); err != nil {
			// Index might already exist, that's okay
			log.Printf("Note: MongoDB index creation on %s: %v", col.Name(), err)
		}
	}

	create(s.users, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	create(s.users, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	create(s.subtasks, mongo.IndexModel{
		Keys: bson.D{{Key: "task_id", Value: 1}},
	})
	create(s.subtasks, mongo.IndexModel{
		Keys: bson.D{{Key: "assigned_to", Value: 1}},
	})
	create(s.workUploads, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "submitted_at", Value: -1}},
	})
	create(s.notifications, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	// Deadline reminders are inserted-if-absent on this key; the unique
	// index is what makes concurrent scanner runs race-free.
	create(s.notifications, mongo.IndexModel{
		Keys: bson.D{{Key: "dedup_key", Value: 1}},
		Options: options.Index().SetUnique(true).
			SetPartialFilterExpression(bson.M{"dedup_key": bson.M{"$exists": true}}),
	})
	create(s.timeline, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
}

// Close disconnects the underlying client.
func (s *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 5*time.Second)
}

// ---- Users ----

func (s *Mongo) CreateUser(ctx context.Context, u *models.User) error {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	if _, err := s.users.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (s *Mongo) UserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

func (s *Mongo) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"username": username})
}

func (s *Mongo) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	var u models.User
	if err := s.users.FindOne(ctx, filter).Decode(&u); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &u, nil
}

func (s *Mongo) ListUsers(ctx context.Context) ([]models.User, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	cursor, err := s.users.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	return users, nil
}

func (s *Mongo) UsersByRole(ctx context.Context, role models.Role, activeOnly bool) ([]models.User, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	filter := bson.M{"role": role}
	if activeOnly {
		filter["is_active"] = true
	}
	cursor, err := s.users.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query users by role: %w", err)
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	return users, nil
}

func (s *Mongo) UpdateUserProfile(ctx context.Context, id primitive.ObjectID, firstName, lastName, email *string) (*models.User, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	set := bson.M{"updated_at": time.Now().UTC()}
	if firstName != nil {
		set["first_name"] = *firstName
	}
	if lastName != nil {
		set["last_name"] = *lastName
	}
	if email != nil {
		set["email"] = *email
	}

	var u models.User
	err := s.users.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&u)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to update user profile: %w", err)
	}
	return &u, nil
}

// ---- Projects ----

func (s *Mongo) CreateProject(ctx context.Context, p *models.Project) error {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	if _, err := s.projects.InsertOne(ctx, p); err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}
	return nil
}

func (s *Mongo) ProjectByID(ctx context.Context, id primitive.ObjectID) (*models.Project, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	var p models.Project
	if err := s.projects.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query project: %w", err)
	}
	return &p, nil
}

func (s *Mongo) ListProjects(ctx context.Context) ([]models.Project, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	cursor, err := s.projects.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer cursor.Close(ctx)

	var projects []models.Project
	if err := cursor.All(ctx, &projects); err != nil {
		return nil, fmt.Errorf("failed to decode projects: %w", err)
	}
	return projects, nil
}

// ---- Tasks ----

func (s *Mongo) CreateTask(ctx context.Context, t *models.Task) error {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	if t.ID.IsZero() {
		t.ID = primitive.NewObjectID()
	}
	if _, err := s.tasks.InsertOne(ctx, t); err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

func (s *Mongo) TaskByID(ctx context.Context, id primitive.ObjectID) (*models.Task, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	var t models.Task
	if err := s.tasks.FindOne(ctx, bson.M{"_id": id}).Decode(&t); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query task: %w", err)
	}
	return &t, nil
}

func taskFilterQuery(f TaskFilter) bson.M {
	filter := bson.M{}
	if !f.IncludeArchived {
		filter["archived"] = bson.M{"$ne": true}
	}
	if len(f.Statuses) > 0 {
		filter["status"] = bson.M{"$in": f.Statuses}
	}
	if len(f.ExcludeStatuses) > 0 {
		filter["status"] = bson.M{"$nin": f.ExcludeStatuses}
	}
	if f.CreatedBy != nil {
		filter["created_by"] = *f.CreatedBy
	}
	if f.AssignedTo != nil {
		filter["assigned_to"] = *f.AssignedTo
	}
	if f.BroadcastOnly {
		filter["assigned_to_all_managers"] = true
	}
	if f.HasDueDate {
		filter["due_date"] = bson.M{"$nin": bson.A{"", nil}}
	}
	return filter
}

func (s *Mongo) ListTasks(ctx context.Context, f TaskFilter) ([]models.Task, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	cursor, err := s.tasks.Find(ctx, taskFilterQuery(f),
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer cursor.Close(ctx)

	var tasks []models.Task
	if err := cursor.All(ctx, &tasks); err != nil {
		return nil, fmt.Errorf("failed to decode tasks: %w", err)
	}
	return tasks, nil
}

func taskUpdateSet(upd TaskUpdate) bson.M {
	set := bson.M{"updated_at": time.Now().UTC()}
	if upd.Title != nil {
		set["title"] = *upd.Title
	}
	if upd.Description != nil {
		set["description"] = *upd.Description
	}
	if upd.Priority != nil {
		set["priority"] = *upd.Priority
	}
	if upd.Status != nil {
		set["status"] = *upd.Status
	}
	if upd.Progress != nil {
		set["progress"] = *upd.Progress
	}
	if upd.HasSubtasks != nil {
		set["has_subtasks"] = *upd.HasSubtasks
	}
	if upd.SubtasksCount != nil {
		set["subtasks_count"] = *upd.SubtasksCount
	}
	if upd.AllSubtasksApproved != nil {
		set["all_subtasks_approved"] = *upd.AllSubtasksApproved
	}
	if upd.StartDate != nil {
		set["start_date"] = *upd.StartDate
	}
	if upd.DueDate != nil {
		set["due_date"] = *upd.DueDate
	}
	if upd.AdminFeedback != nil {
		set["admin_feedback"] = *upd.AdminFeedback
	}
	if upd.ApprovedByAdmin != nil {
		set["approved_by_admin"] = *upd.ApprovedByAdmin
	}
	if upd.AdminApprovedAt != nil {
		set["admin_approved_at"] = *upd.AdminApprovedAt
	}
	if upd.RejectedByAdmin != nil {
		set["rejected_by_admin"] = *upd.RejectedByAdmin
	}
	if upd.AdminRejectedAt != nil {
		set["admin_rejected_at"] = *upd.AdminRejectedAt
	}
	if upd.Archived != nil {
		set["archived"] = *upd.Archived
	}
	return set
}

func (s *Mongo) UpdateTask(ctx context.Context, id primitive.ObjectID, upd TaskUpdate) (*models.Task, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	var t models.Task
	err := s.tasks.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": taskUpdateSet(upd)},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&t)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	return &t, nil
}

// UpdateTaskStatus is a compare-and-swap: the update applies only when
// the persisted status still equals expected.
func (s *Mongo) UpdateTaskStatus(ctx context.Context, id primitive.ObjectID, expected models.TaskStatus, upd TaskUpdate) (*models.Task, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	var t models.Task
	err := s.tasks.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": expected},
		bson.M{"$set": taskUpdateSet(upd)},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&t)
	if err == nil {
		return &t, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, fmt.Errorf("failed to update task status: %w", err)
	}
	// Distinguish a missing task from a stale precondition.
	if _, lookupErr := s.TaskByID(ctx, id); lookupErr != nil {
		return nil, lookupErr
	}
	return nil, ErrStaleStatus
}

// ---- Subtasks ----

// CreateSubtasks inserts the whole batch inside one transaction, so a
// failed validation or insert leaves zero subtasks behind.
func (s *Mongo) CreateSubtasks(ctx context.Context, subtasks []*models.Subtask) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, st := range subtasks {
		if st.ID.IsZero() {
			st.ID = primitive.NewObjectID()
		}
	}
	docs := make([]interface{}, len(subtasks))
	for i, st := range subtasks {
		docs[i] = st
	}

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return s.subtasks.InsertMany(sc, docs)
	})
	if err != nil {
		return fmt.Errorf("failed to insert subtask batch: %w", err)
	}
	return nil
}

func (s *Mongo) SubtaskByID(ctx context.Context, id primitive.ObjectID) (*models.Subtask, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	var st models.Subtask
	if err := s.subtasks.FindOne(ctx, bson.M{"_id": id}).Decode(&st); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query subtask: %w", err)
	}
	return &st, nil
}

func (s *Mongo) ListSubtasks(ctx context.Context, f SubtaskFilter) ([]models.Subtask, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	filter := bson.M{}
	if f.TaskID != nil {
		filter["task_id"] = *f.TaskID
	}
	if f.AssignedTo != nil {
		filter["assigned_to"] = *f.AssignedTo
	}
	if f.AssignedBy != nil {
		filter["assigned_by"] = *f.AssignedBy
	}
	if len(f.Statuses) > 0 {
		filter["status"] = bson.M{"$in": f.Statuses}
	}

	cursor, err := s.subtasks.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query subtasks: %w", err)
	}
	defer cursor.Close(ctx)

	var subtasks []models.Subtask
	if err := cursor.All(ctx, &subtasks); err != nil {
		return nil, fmt.Errorf("failed to decode subtasks: %w", err)
	}
	return subtasks, nil
}

func subtaskUpdateSet(upd SubtaskUpdate) bson.M {
	set := bson.M{"updated_at": time.Now().UTC()}
	if upd.Status != nil {
		set["status"] = *upd.Status
	}
	if upd.Progress != nil {
		set["progress"] = *upd.Progress
	}
	if upd.Description != nil {
		set["description"] = *upd.Description
	}
	if upd.ManagerFeedback != nil {
		set["manager_feedback"] = *upd.ManagerFeedback
	}
	if upd.ApprovedBy != nil {
		set["approved_by"] = *upd.ApprovedBy
	}
	if upd.ApprovedAt != nil {
		set["approved_at"] = *upd.ApprovedAt
	}
	if upd.RejectedBy != nil {
		set["rejected_by"] = *upd.RejectedBy
	}
	if upd.RejectedAt != nil {
		set["rejected_at"] = *upd.RejectedAt
	}
	return set
}

// UpdateSubtaskStatus is a compare-and-swap against any of the
// expected pre-states.
func (s *Mongo) UpdateSubtaskStatus(ctx context.Context, id primitive.ObjectID, expected []models.SubtaskStatus, upd SubtaskUpdate) (*models.Subtask, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	var st models.Subtask
	err := s.subtasks.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": bson.M{"$in": expected}},
		bson.M{"$set": subtaskUpdateSet(upd)},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&st)
	if err == nil {
		return &st, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, fmt.Errorf("failed to update subtask status: %w", err)
	}
	if _, lookupErr := s.SubtaskByID(ctx, id); lookupErr != nil {
		return nil, lookupErr
	}
	return nil, ErrStaleStatus
}

func (s *Mongo) RevertApprovedSubtasks(ctx context.Context, taskID primitive.ObjectID) (int64, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	res, err := s.subtasks.UpdateMany(ctx,
		bson.M{"task_id": taskID, "status": models.SubtaskApproved},
		bson.M{"$set": bson.M{
			"status":     models.SubtaskNeedsRevision,
			"updated_at": time.Now().UTC(),
		}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to revert approved subtasks: %w", err)
	}
	return res.ModifiedCount, nil
}

// ---- Work uploads ----

func (s *Mongo) CreateWorkUpload(ctx context.Context, w *models.WorkUpload) error {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	if w.ID.IsZero() {
		w.ID = primitive.NewObjectID()
	}
	if _, err := s.workUploads.InsertOne(ctx, w); err != nil {
		return fmt.Errorf("failed to insert work upload: %w", err)
	}
	return nil
}

func (s *Mongo) WorkUploadByID(ctx context.Context, id primitive.ObjectID) (*models.WorkUpload, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	var w models.WorkUpload
	if err := s.workUploads.FindOne(ctx, bson.M{"_id": id}).Decode(&w); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query work upload: %w", err)
	}
	return &w, nil
}

func (s *Mongo) ListWorkUploads(ctx context.Context, f WorkFilter) ([]models.WorkUpload, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	filter := bson.M{}
	if f.UserID != nil {
		filter["user_id"] = *f.UserID
	}
	if f.TaskID != nil {
		filter["task_id"] = *f.TaskID
	}
	if f.SubtaskID != nil {
		filter["subtask_id"] = *f.SubtaskID
	}
	if f.ApprovalStatus != "" {
		filter["approval_status"] = f.ApprovalStatus
	}

	cursor, err := s.workUploads.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "submitted_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query work uploads: %w", err)
	}
	defer cursor.Close(ctx)

	var uploads []models.WorkUpload
	if err := cursor.All(ctx, &uploads); err != nil {
		return nil, fmt.Errorf("failed to decode work uploads: %w", err)
	}
	return uploads, nil
}

// ReviewWorkUpload appends review fields; the compare-and-swap on
// approval_status=pending means a second concurrent review loses.
func (s *Mongo) ReviewWorkUpload(ctx context.Context, id primitive.ObjectID, upd ReviewUpdate) (*models.WorkUpload, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	var w models.WorkUpload
	err := s.workUploads.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "approval_status": models.ApprovalPending},
		bson.M{"$set": bson.M{
			"approval_status": upd.ApprovalStatus,
			"reviewed_by":     upd.ReviewedBy,
			"review_feedback": upd.Feedback,
			"reviewed_at":     upd.ReviewedAt,
			"updated_at":      time.Now().UTC(),
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&w)
	if err == nil {
		return &w, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, fmt.Errorf("failed to review work upload: %w", err)
	}
	if _, lookupErr := s.WorkUploadByID(ctx, id); lookupErr != nil {
		return nil, lookupErr
	}
	return nil, ErrStaleStatus
}

// ---- Notifications ----

func (s *Mongo) CreateNotification(ctx context.Context, n *models.Notification) error {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	if _, err := s.notifications.InsertOne(ctx, n); err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

func (s *Mongo) NotificationsByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Notification, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	cursor, err := s.notifications.Find(ctx, bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer cursor.Close(ctx)

	var notifications []models.Notification
	if err := cursor.All(ctx, &notifications); err != nil {
		return nil, fmt.Errorf("failed to decode notifications: %w", err)
	}
	return notifications, nil
}

func (s *Mongo) MarkNotificationRead(ctx context.Context, id, userID primitive.ObjectID) error {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	res, err := s.notifications.UpdateOne(ctx,
		bson.M{"_id": id, "user_id": userID},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Mongo) CountUnreadNotifications(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	count, err := s.notifications.CountDocuments(ctx, bson.M{"user_id": userID, "read": false})
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

type deadlineNotification struct {
	models.Notification `bson:",inline"`
	DedupKey            string `bson:"dedup_key"`
}

// DeadlineDedupKey buckets reminders per task and window so the unique
// index turns check-then-insert into one atomic insert-if-absent.
func DeadlineDedupKey(taskID primitive.ObjectID, at time.Time, window time.Duration) string {
	bucket := at.UTC().Truncate(window).Unix()
	return fmt.Sprintf("deadline:%s:%d", taskID.Hex(), bucket)
}

func (s *Mongo) CreateDeadlineNotification(ctx context.Context, n *models.Notification, window time.Duration) (bool, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	if n.TaskID == nil {
		return false, fmt.Errorf("deadline notification requires a task reference")
	}
	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	doc := deadlineNotification{
		Notification: *n,
		DedupKey:     DeadlineDedupKey(*n.TaskID, n.CreatedAt, window),
	}
	if _, err := s.notifications.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert deadline notification: %w", err)
	}
	return true, nil
}

// ---- Timeline ----

func (s *Mongo) CreateTimelineEntry(ctx context.Context, e *models.TimelineEntry) error {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	if e.ID.IsZero() {
		e.ID = primitive.NewObjectID()
	}
	if _, err := s.timeline.InsertOne(ctx, e); err != nil {
		return fmt.Errorf("failed to insert timeline entry: %w", err)
	}
	return nil
}

func (s *Mongo) ListTimeline(ctx context.Context, f TimelineFilter) ([]models.TimelineEntry, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	filter := bson.M{}
	if f.UserID != nil {
		filter["user_id"] = *f.UserID
	}
	if f.ActionType != "" {
		filter["action_type"] = f.ActionType
	}
	if !f.Since.IsZero() {
		filter["created_at"] = bson.M{"$gte": f.Since}
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	cursor, err := s.timeline.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query timeline: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []models.TimelineEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode timeline entries: %w", err)
	}
	return entries, nil
}
